// Package observability defines shared logging primitives and the per-tick trace record.
package observability

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger captures structured logging behaviours shared across layers.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field represents a key/value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

var defaultLogger Logger = noopLogger{}

// SetLogger overrides the global logger used by the system.
func SetLogger(logger Logger) {
	if logger == nil {
		defaultLogger = noopLogger{}
		return
	}
	defaultLogger = logger
}

// Log returns the current global logger instance.
func Log() Logger {
	return defaultLogger
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...Field) {}
func (noopLogger) Info(string, ...Field)  {}
func (noopLogger) Error(string, ...Field) {}

// ZerologLogger adapts a zerolog.Logger to Logger.
type ZerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger writes JSON log lines to w at the given level. A nil writer logs to stderr;
// an unknown level falls back to info.
func NewZerologLogger(w io.Writer, level string) *ZerologLogger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return &ZerologLogger{zl: zerolog.New(w).With().Timestamp().Logger().Level(lvl)}
}

// With returns a child logger that always carries the given fields.
func (l *ZerologLogger) With(fields ...Field) *ZerologLogger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &ZerologLogger{zl: ctx.Logger()}
}

// Debug implements Logger.
func (l *ZerologLogger) Debug(msg string, fields ...Field) { emit(l.zl.Debug(), msg, fields) }

// Info implements Logger.
func (l *ZerologLogger) Info(msg string, fields ...Field) { emit(l.zl.Info(), msg, fields) }

// Error implements Logger.
func (l *ZerologLogger) Error(msg string, fields ...Field) { emit(l.zl.Error(), msg, fields) }

func emit(evt *zerolog.Event, msg string, fields []Field) {
	if evt == nil {
		return
	}
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			evt = evt.AnErr(f.Key, v)
		case string:
			evt = evt.Str(f.Key, v)
		case int:
			evt = evt.Int(f.Key, v)
		case int64:
			evt = evt.Int64(f.Key, v)
		case bool:
			evt = evt.Bool(f.Key, v)
		case []string:
			evt = evt.Strs(f.Key, v)
		default:
			evt = evt.Interface(f.Key, v)
		}
	}
	evt.Msg(msg)
}
