package log

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// valueTextHandler renders records as "time level msg key=value key=value"
// lines, the shape operators expect from a foreground process.
type valueTextHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	opts   *slog.HandlerOptions
	attrs  []slog.Attr
	groups []string
}

// NewValueTextHandler returns a slog.Handler that writes human-readable
// key=value lines to w, honoring opts.Level the same way slog's built-in
// text handler does.
func NewValueTextHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &valueTextHandler{mu: &sync.Mutex{}, out: w, opts: opts}
}

func (h *valueTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}
	return level >= min
}

func (h *valueTextHandler) Handle(ctx context.Context, r slog.Record) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s %s", r.Time.Format("2006-01-02T15:04:05.000Z07:00"), r.Level, r.Message)

	for _, a := range h.attrs {
		writeAttr(&buf, h.groups, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&buf, h.groups, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

func writeAttr(buf *bytes.Buffer, groups []string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	for i := len(groups) - 1; i >= 0; i-- {
		key = groups[i] + "." + key
	}
	fmt.Fprintf(buf, " %s=%v", key, a.Value)
}

func (h *valueTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &valueTextHandler{mu: h.mu, out: h.out, opts: h.opts, groups: h.groups}
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return next
}

func (h *valueTextHandler) WithGroup(name string) slog.Handler {
	next := &valueTextHandler{mu: h.mu, out: h.out, opts: h.opts, attrs: h.attrs}
	next.groups = append(append([]string{}, h.groups...), name)
	return next
}
