package log

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const requestIDCtxKey ctxKey = iota

// WithRequestID attaches a control-surface request ID to ctx, so every log
// line emitted while handling that request (and by the migration it
// triggers) can be correlated back to the originating HTTP call even
// though reflection, materialization, and data movement all log from
// goroutines the handler itself never touches.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey, id)
}

// RequestIDFromContext returns the request ID attached by WithRequestID,
// or "" for a context with none (e.g. the CLI's one-shot run).
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}

// correlationHandler decorates every record with the active span's trace
// and span IDs plus, when present, the control-surface request ID, so a
// log line from deep in an orchestrator phase can be traced back to both
// the HTTP call that started it and the distributed trace it belongs to.
type correlationHandler struct {
	next slog.Handler
}

func withCorrelation(h slog.Handler) slog.Handler {
	return &correlationHandler{next: h}
}

func (h *correlationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *correlationHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.next.Handle(ctx, r)
}

func (h *correlationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &correlationHandler{next: h.next.WithAttrs(attrs)}
}

func (h *correlationHandler) WithGroup(name string) slog.Handler {
	return &correlationHandler{next: h.next.WithGroup(name)}
}
