// Package logger is the process-wide structured logger used by eradb.
//
// It wraps log/slog with a colour text handler for terminals and the stock
// JSON handler for machines. Level and format can be changed at runtime.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level is a log level.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel parses DEBUG, INFO, WARN or ERROR, case insensitively.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	}
	return LevelInfo, false
}

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	level  atomic.Int32
	format atomic.Value

	mu       sync.RWMutex
	slogger  *slog.Logger
	output   io.Writer = os.Stderr
	useColor bool
	closer   io.Closer
)

func init() {
	level.Store(int32(LevelInfo))
	format.Store("text")
	useColor = isTerminal(os.Stderr.Fd())
	rebuild()
}

func rebuild() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: Level(level.Load()).slog()}
	if f, _ := format.Load().(string); f == "json" {
		slogger = slog.New(slog.NewJSONHandler(output, opts))
		return
	}
	slogger = slog.New(NewColorTextHandler(output, opts, useColor))
}

// Init configures the logger. Empty fields keep their current value.
// Output is "stdout", "stderr" or a file path opened for appending.
func Init(cfg Config) error {
	if cfg.Output != "" {
		w, color, c, err := openOutput(cfg.Output)
		if err != nil {
			return err
		}
		mu.Lock()
		if closer != nil {
			_ = closer.Close()
		}
		output, useColor, closer = w, color, c
		mu.Unlock()
	}

	if cfg.Level != "" {
		if _, ok := ParseLevel(cfg.Level); !ok {
			return fmt.Errorf("invalid log level %q", cfg.Level)
		}
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		f := strings.ToLower(cfg.Format)
		if f != "text" && f != "json" {
			return fmt.Errorf("invalid log format %q", cfg.Format)
		}
		SetFormat(f)
	}

	rebuild()
	return nil
}

func openOutput(name string) (io.Writer, bool, io.Closer, error) {
	switch strings.ToLower(name) {
	case "stdout":
		return os.Stdout, isTerminal(os.Stdout.Fd()), nil, nil
	case "stderr":
		return os.Stderr, isTerminal(os.Stderr.Fd()), nil, nil
	}

	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, false, nil, fmt.Errorf("failed to open log file %q: %w", name, err)
	}
	return f, false, f, nil
}

// InitWithWriter sends output to w. Used by tests.
func InitWithWriter(w io.Writer, lvl, outFormat string, color bool) {
	mu.Lock()
	output = w
	useColor = color
	mu.Unlock()

	if lvl != "" {
		SetLevel(lvl)
	}
	if outFormat != "" {
		SetFormat(outFormat)
	}
	rebuild()
}

// SetLevel sets the minimum level. Unknown levels are ignored.
func SetLevel(s string) {
	l, ok := ParseLevel(s)
	if !ok {
		return
	}
	level.Store(int32(l))
	rebuild()
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	return Level(level.Load())
}

// SetFormat sets the output format, text or json. Unknown formats are
// ignored.
func SetFormat(f string) {
	f = strings.ToLower(f)
	if f != "text" && f != "json" {
		return
	}
	format.Store(f)
	rebuild()
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

func enabled(l Level) bool {
	return l >= Level(level.Load())
}

// Debug logs at debug level: Debug("msg", "key", value, ...)
func Debug(msg string, args ...any) {
	if enabled(LevelDebug) {
		get().Debug(msg, args...)
	}
}

// Info logs at info level.
func Info(msg string, args ...any) {
	if enabled(LevelInfo) {
		get().Info(msg, args...)
	}
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	if enabled(LevelWarn) {
		get().Warn(msg, args...)
	}
}

// Error logs at error level.
func Error(msg string, args ...any) {
	get().Error(msg, args...)
}

// DebugCtx logs at debug level, prefixing the trace and log context fields
// found in ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	if enabled(LevelDebug) {
		get().Debug(msg, withContext(ctx, args)...)
	}
}

// InfoCtx logs at info level with context fields.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	if enabled(LevelInfo) {
		get().Info(msg, withContext(ctx, args)...)
	}
}

// WarnCtx logs at warn level with context fields.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	if enabled(LevelWarn) {
		get().Warn(msg, withContext(ctx, args)...)
	}
}

// ErrorCtx logs at error level with context fields.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	get().Error(msg, withContext(ctx, args)...)
}

// With returns a logger with pre-bound attributes.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}

// Duration returns the time since start in milliseconds.
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// Infof logs a printf-style message at info level.
func Infof(format string, v ...any) {
	if enabled(LevelInfo) {
		get().Info(fmt.Sprintf(format, v...))
	}
}

// Debugf logs a printf-style message at debug level.
func Debugf(format string, v ...any) {
	if enabled(LevelDebug) {
		get().Debug(fmt.Sprintf(format, v...))
	}
}
