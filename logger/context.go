package logger

import "context"

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey string

// contextFields lists the keys WithContext copies into log events.
var contextFields = []string{
	FieldTraceID,
	FieldSpanID,
	FieldRunID,
	FieldGraph,
	FieldNode,
	FieldDepth,
}

// ContextWithRun stores the run id and graph name for WithContext.
func ContextWithRun(ctx context.Context, runID, graph string) context.Context {
	ctx = context.WithValue(ctx, contextKey(FieldRunID), runID)
	return context.WithValue(ctx, contextKey(FieldGraph), graph)
}

// ContextWithNode stores the executing node id for WithContext.
func ContextWithNode(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, contextKey(FieldNode), nodeID)
}

// ContextWithDepth stores the nesting depth for WithContext.
func ContextWithDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, contextKey(FieldDepth), depth)
}

// ContextWithTrace stores trace and span ids for WithContext.
func ContextWithTrace(ctx context.Context, traceID, spanID string) context.Context {
	ctx = context.WithValue(ctx, contextKey(FieldTraceID), traceID)
	return context.WithValue(ctx, contextKey(FieldSpanID), spanID)
}

// RunIDFromContext returns the run id stored by ContextWithRun.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKey(FieldRunID)).(string); ok {
		return v
	}
	return ""
}
