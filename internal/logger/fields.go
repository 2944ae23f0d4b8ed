package logger

import "log/slog"

// Standard field keys. Use them for every structured log call so that logs
// can be queried consistently.
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	KeyDB        = "db"
	KeyOperation = "operation"
	KeyPath      = "path"

	KeySeq       = "seq"
	KeyEras      = "eras"
	KeyKeys      = "keys"
	KeyBytes     = "bytes"
	KeyVersion   = "version"
	KeyFlushID   = "flush_id"
	KeyState     = "state"
	KeyCapacity  = "capacity"
	KeyUsed      = "used"
	KeySource    = "source"
	KeyReason    = "reason"
	KeyDuration  = "duration_ms"
	KeyError     = "error"
	KeyComponent = "component"
)

// Err returns an error attribute, or an empty attribute for nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Seq returns a sequence number attribute.
func Seq(seq uint64) slog.Attr {
	return slog.Uint64(KeySeq, seq)
}

// DurationMs returns a duration attribute in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDuration, ms)
}
