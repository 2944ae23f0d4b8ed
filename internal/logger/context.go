package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type contextKey struct{}

// LogContext carries per-operation fields that every log line of the
// operation should include.
type LogContext struct {
	DB        string // database directory
	Operation string // get, commit, flush, rollback, recover
}

// WithContext returns ctx carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, contextKey{}, lc)
}

// FromContext returns the LogContext in ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(contextKey{}).(*LogContext)
	return lc
}

// WithOperation returns a copy of lc with the operation set.
func (lc *LogContext) WithOperation(op string) *LogContext {
	if lc == nil {
		return &LogContext{Operation: op}
	}
	clone := *lc
	clone.Operation = op
	return &clone
}

// withContext prepends trace ids from the active span and LogContext fields.
func withContext(ctx context.Context, args []any) []any {
	if ctx == nil {
		return args
	}

	out := make([]any, 0, 8+len(args))
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		out = append(out, KeyTraceID, sc.TraceID().String(), KeySpanID, sc.SpanID().String())
	}
	if lc := FromContext(ctx); lc != nil {
		if lc.DB != "" {
			out = append(out, KeyDB, lc.DB)
		}
		if lc.Operation != "" {
			out = append(out, KeyOperation, lc.Operation)
		}
	}
	if len(out) == 0 {
		return args
	}
	return append(out, args...)
}
