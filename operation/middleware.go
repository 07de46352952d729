package operation

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/kbukum/flowkit/errors"
)

// Middleware transforms an Operation by wrapping it.
type Middleware func(Operation) Operation

// Chain composes middlewares into one. The first middleware is
// outermost: Chain(a, b, c)(op) is a(b(c(op))).
func Chain(middlewares ...Middleware) Middleware {
	return func(inner Operation) Operation {
		for i := len(middlewares) - 1; i >= 0; i-- {
			inner = middlewares[i](inner)
		}
		return inner
	}
}

// wrapped forwards Name to the inner operation.
type wrapped struct {
	inner Operation
}

func (w wrapped) Name() string { return w.inner.Name() }

// WithTimeout bounds each invocation. A non-positive d disables the
// bound. An operation that fails because the deadline passed returns a
// TIMEOUT *errors.AppError.
func WithTimeout(d time.Duration) Middleware {
	return func(inner Operation) Operation {
		if d <= 0 {
			return inner
		}
		return &timeoutOp{wrapped{inner}, d}
	}
}

type timeoutOp struct {
	wrapped
	d time.Duration
}

func (t *timeoutOp) Execute(ctx context.Context, inv Invocation) (cty.Value, error) {
	tctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	v, err := t.inner.Execute(tctx, inv)
	if err != nil && ctx.Err() == nil && stderrors.Is(tctx.Err(), context.DeadlineExceeded) {
		return cty.NilVal, errors.Timeout(t.Name()).WithCause(err)
	}
	return v, err
}
