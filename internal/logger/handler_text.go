package logger

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// ColorTextHandler writes records as
//
//	[2006-01-02 15:04:05] [INFO] message key=value ...
//
// with ANSI colours for the level and keys when enabled.
type ColorTextHandler struct {
	opts     *slog.HandlerOptions
	w        io.Writer
	mu       *sync.Mutex
	attrs    []slog.Attr
	prefix   string
	useColor bool
}

// NewColorTextHandler creates a handler writing to w.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, useColor bool) *ColorTextHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &ColorTextHandler{opts: opts, w: w, mu: &sync.Mutex{}, useColor: useColor}
}

// Enabled implements slog.Handler.
func (h *ColorTextHandler) Enabled(_ context.Context, l slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return l >= minLevel
}

// Handle implements slog.Handler.
func (h *ColorTextHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	buf = append(buf, '[')
	buf = r.Time.AppendFormat(buf, "2006-01-02 15:04:05")
	buf = append(buf, "] ["...)
	buf = h.appendLevel(buf, r.Level)
	buf = append(buf, "] "...)
	buf = append(buf, r.Message...)

	for _, a := range h.attrs {
		buf = h.appendAttr(buf, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		buf = h.appendAttr(buf, h.prefix, a)
		return true
	})
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *ColorTextHandler) appendLevel(buf []byte, l slog.Level) []byte {
	name, color := "ERROR", colorRed
	switch {
	case l < slog.LevelInfo:
		name, color = "DEBUG", colorGray
	case l < slog.LevelWarn:
		name, color = "INFO", colorGreen
	case l < slog.LevelError:
		name, color = "WARN", colorYellow
	}
	if !h.useColor {
		return append(buf, name...)
	}
	return append(append(append(buf, color...), name...), colorReset...)
}

func (h *ColorTextHandler) appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}

	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			buf = h.appendAttr(buf, p, ga)
		}
		return buf
	}

	buf = append(buf, ' ')
	if h.useColor {
		buf = append(buf, colorCyan...)
	}
	buf = append(buf, prefix...)
	buf = append(buf, a.Key...)
	if h.useColor {
		buf = append(buf, colorReset...)
	}
	buf = append(buf, '=')
	return appendValue(buf, a.Value)
}

func appendValue(buf []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if strings.ContainsAny(s, " =\"\n") {
			return strconv.AppendQuote(buf, s)
		}
		return append(buf, s...)
	case slog.KindInt64:
		return strconv.AppendInt(buf, v.Int64(), 10)
	case slog.KindUint64:
		return strconv.AppendUint(buf, v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.AppendFloat(buf, v.Float64(), 'f', 3, 64)
	case slog.KindBool:
		return strconv.AppendBool(buf, v.Bool())
	case slog.KindDuration:
		return append(buf, v.Duration().String()...)
	case slog.KindTime:
		return v.Time().AppendFormat(buf, time.RFC3339)
	default:
		return append(buf, v.String()...)
	}
}

// WithAttrs implements slog.Handler.
func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

// WithGroup implements slog.Handler.
func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}
