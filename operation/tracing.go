package operation

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/kbukum/flowkit/observability"
)

// WithTracing opens a "flowkit.operation.<name>" span around each
// invocation.
func WithTracing() Middleware {
	return func(inner Operation) Operation {
		return &tracingOp{wrapped{inner}}
	}
}

type tracingOp struct {
	wrapped
}

func (t *tracingOp) Execute(ctx context.Context, inv Invocation) (cty.Value, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanOperation+"."+t.Name())
	defer span.End()

	observability.SetSpanAttribute(ctx, observability.AttrOperation, t.Name())
	observability.SetSpanAttribute(ctx, observability.AttrBlock, inv.Block.String())
	observability.SetSpanAttribute(ctx, observability.AttrNodeID, inv.NodeID)
	observability.SetSpanAttribute(ctx, observability.AttrRunID, inv.RunID)

	v, err := t.inner.Execute(ctx, inv)
	if err != nil {
		observability.SetSpanError(ctx, err)
	}
	return v, err
}
