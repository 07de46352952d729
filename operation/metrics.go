package operation

import (
	"context"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/observability"
)

// WithMetrics records invocation count, duration and errors.
func WithMetrics(m *observability.Metrics) Middleware {
	return func(inner Operation) Operation {
		if m == nil {
			return inner
		}
		return &metricsOp{wrapped{inner}, m}
	}
}

type metricsOp struct {
	wrapped
	m *observability.Metrics
}

func (o *metricsOp) Execute(ctx context.Context, inv Invocation) (cty.Value, error) {
	start := time.Now()
	v, err := o.inner.Execute(ctx, inv)

	if err != nil {
		o.m.RecordError(ctx, string(errors.CodeOf(err)), logger.ComponentOperation)
	}
	o.m.RecordOperation(ctx, o.Name(), observability.StatusFor(err), time.Since(start))
	return v, err
}
