package dag

import (
	"context"
	"time"

	"github.com/zclconf/go-cty/cty"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/observability"
)

// instrument wraps an executor with logging and, when enabled, metrics
// and tracing. Tracing is outermost so the other wrappers run inside the
// node span.
func (s *Scheduler) instrument(e executor) executor {
	e = withLogging(e, s.log)
	if s.metrics != nil {
		e = withMetrics(e, s.metrics)
	}
	if s.tracing {
		e = withTracing(e)
	}
	return e
}

// withTracing wraps an executor with OpenTelemetry span creation.
// Each node execution creates a span named "flowkit.node.{kind}".
func withTracing(e executor) executor {
	return &tracingExecutor{inner: e}
}

type tracingExecutor struct {
	inner executor
}

func (t *tracingExecutor) execute(ctx context.Context, call *nodeCall) (cty.Value, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanNode+"."+call.node.Kind.String())
	defer span.End()
	ctx = withSpanIDs(ctx, span)

	observability.SetSpanAttribute(ctx, observability.AttrRunID, call.frame.runID)
	observability.SetSpanAttribute(ctx, observability.AttrNodeID, call.node.ID)
	observability.SetSpanAttribute(ctx, observability.AttrNodeKind, call.node.Kind.String())
	observability.SetSpanAttribute(ctx, observability.AttrLevel, call.level)
	observability.SetSpanAttribute(ctx, observability.AttrDepth, call.frame.depth)
	observability.SetSpanAttribute(ctx, observability.AttrBlock, call.node.Ref.String())

	v, err := t.inner.execute(ctx, call)
	if err != nil {
		observability.SetSpanError(ctx, err)
		observability.SetSpanAttribute(ctx, observability.AttrErrorCode, string(errors.CodeOf(err)))
	}
	return v, err
}

// withSpanIDs makes the ids of span visible to logger.WithContext.
func withSpanIDs(ctx context.Context, span trace.Span) context.Context {
	sc := span.SpanContext()
	if !sc.IsValid() {
		return ctx
	}
	return logger.ContextWithTrace(ctx, sc.TraceID().String(), sc.SpanID().String())
}

// withMetrics wraps an executor with metric recording.
// Records node count and duration by kind and status.
func withMetrics(e executor, m *observability.Metrics) executor {
	return &metricsExecutor{inner: e, metrics: m}
}

type metricsExecutor struct {
	inner   executor
	metrics *observability.Metrics
}

func (m *metricsExecutor) execute(ctx context.Context, call *nodeCall) (cty.Value, error) {
	start := time.Now()
	v, err := m.inner.execute(ctx, call)
	m.metrics.RecordNode(ctx, call.node.Kind.String(), observability.StatusFor(err), time.Since(start))
	return v, err
}

// withLogging wraps an executor with execution logging.
// Logs: node id, kind, level, duration, and success/error status.
func withLogging(e executor, log *logger.Logger) executor {
	return &loggingExecutor{inner: e, log: log}
}

type loggingExecutor struct {
	inner executor
	log   *logger.Logger
}

func (l *loggingExecutor) execute(ctx context.Context, call *nodeCall) (cty.Value, error) {
	start := time.Now()
	v, err := l.inner.execute(ctx, call)

	fields := logger.NodeFields(call.node.ID, call.node.Kind.String(), call.level, time.Since(start))
	fields[logger.FieldBlock] = call.node.Ref.String()
	log := l.log.WithContext(ctx)
	if err != nil {
		log.Warn("node failed", logger.MergeWithError(fields, err))
	} else {
		log.Debug("node completed", fields)
	}
	return v, err
}
