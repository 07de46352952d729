package operation

import (
	"context"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/kbukum/flowkit/logger"
)

// WithLogging logs each invocation: operation, node, duration and status.
func WithLogging(log *logger.Logger) Middleware {
	return func(inner Operation) Operation {
		return &loggingOp{wrapped{inner}, log}
	}
}

type loggingOp struct {
	wrapped
	log *logger.Logger
}

func (l *loggingOp) Execute(ctx context.Context, inv Invocation) (cty.Value, error) {
	start := time.Now()
	v, err := l.inner.Execute(ctx, inv)

	fields := logger.Fields(
		logger.FieldOperation, l.Name(),
		logger.FieldBlock, inv.Block.String(),
		logger.FieldNode, inv.NodeID,
		logger.FieldRunID, inv.RunID,
		logger.FieldDuration, time.Since(start).Milliseconds(),
	)
	if err != nil {
		l.log.Error("operation failed", logger.MergeWithError(fields, err))
	} else {
		l.log.Debug("operation ok", fields)
	}
	return v, err
}
