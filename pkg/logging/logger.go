package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a small structured logger with the WithField/WithFields API used across
// the code base. Records are emitted through log/slog.
type Logger struct {
	mu     sync.Mutex
	fields map[string]any
	slog   *slog.Logger
}

// Options configures the global logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	// File, when set, tees output into a size-rotated log file.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Output defaults to os.Stderr.
	Output io.Writer
}

var (
	// GlobalLogger is the package-level logger used by convenience functions and by other packages.
	GlobalLogger *Logger

	globalMu sync.RWMutex
	rotator  *lumberjack.Logger
)

// Setup installs the global logger. Calling it again replaces the previous one.
func Setup(opts Options) error {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var rot *lumberjack.Logger
	if opts.File != "" {
		rot = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    defaultInt(opts.MaxSizeMB, 10),
			MaxBackups: defaultInt(opts.MaxBackups, 3),
			MaxAge:     defaultInt(opts.MaxAgeDays, 28),
		}
		out = io.MultiWriter(out, rot)
	}

	l := New(out, opts.Level, opts.Format)

	globalMu.Lock()
	old := rotator
	GlobalLogger = l
	rotator = rot
	globalMu.Unlock()

	if old != nil {
		return old.Close()
	}
	return nil
}

// Close releases the rotating file, if any.
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if rotator == nil {
		return nil
	}
	err := rotator.Close()
	rotator = nil
	return err
}

// New builds a logger writing to w.
func New(w io.Writer, level, format string) *Logger {
	hopts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	return FromSlog(slog.New(h))
}

// FromSlog wraps an existing slog logger.
func FromSlog(l *slog.Logger) *Logger {
	return &Logger{fields: make(map[string]any), slog: l}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return New(io.Discard, "error", "text")
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Global returns the global logger, installing a default one on first use.
func Global() *Logger {
	globalMu.RLock()
	l := GlobalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if GlobalLogger == nil {
		GlobalLogger = New(os.Stderr, "info", "text")
	}
	return GlobalLogger
}

// OrGlobal returns l, or the global logger when l is nil.
func OrGlobal(l *Logger) *Logger {
	if l != nil {
		return l
	}
	return Global()
}

// Slog exposes the underlying slog logger with the current fields attached.
func (l *Logger) Slog() *slog.Logger {
	return l.slog.With(l.attrs()...)
}

// normalizeValue converts values that don't render well as attributes.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case error:
		return x.Error()
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return v
	}
}

func (l *Logger) attrs() []any {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]any, 0, len(l.fields)*2)
	for k, v := range l.fields {
		out = append(out, k, normalizeValue(v))
	}
	return out
}

// WithField returns a new Logger with an additional field. It does not mutate the receiver.
func (l *Logger) WithField(key string, value any) *Logger {
	return l.WithFields(map[string]any{key: value})
}

// WithFields returns a new Logger with additional fields merged. It does not mutate the receiver.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	l.mu.Lock()
	merged := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	l.mu.Unlock()
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{fields: merged, slog: l.slog}
}

// WithError attaches err as a string field (nil-safe).
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *Logger) output(level slog.Level, msg string) {
	if !l.slog.Enabled(context.Background(), level) {
		return
	}
	l.slog.Log(context.Background(), level, msg, l.attrs()...)
}

func (l *Logger) Debug(msg string) { l.output(slog.LevelDebug, msg) }
func (l *Logger) Info(msg string)  { l.output(slog.LevelInfo, msg) }
func (l *Logger) Warn(msg string)  { l.output(slog.LevelWarn, msg) }
func (l *Logger) Error(msg string) { l.output(slog.LevelError, msg) }

func (l *Logger) Debugf(format string, v ...any) { l.output(slog.LevelDebug, fmt.Sprintf(format, v...)) }
func (l *Logger) Infof(format string, v ...any)  { l.output(slog.LevelInfo, fmt.Sprintf(format, v...)) }
func (l *Logger) Warnf(format string, v ...any)  { l.output(slog.LevelWarn, fmt.Sprintf(format, v...)) }
func (l *Logger) Errorf(format string, v ...any) { l.output(slog.LevelError, fmt.Sprintf(format, v...)) }

// ErrorWithErr logs msg with err attached.
func (l *Logger) ErrorWithErr(msg string, err error) {
	l.WithError(err).Error(msg)
}

// Top-level helpers operating on the global logger.

func Info(msg string)                     { Global().Info(msg) }
func Infof(f string, v ...any)            { Global().Infof(f, v...) }
func Debug(msg string)                    { Global().Debug(msg) }
func Warn(msg string)                     { Global().Warn(msg) }
func Error(msg string)                    { Global().Error(msg) }
func Errorf(f string, v ...any)           { Global().Errorf(f, v...) }
func WithField(key string, v any) *Logger { return Global().WithField(key, v) }
func WithFields(f map[string]any) *Logger { return Global().WithFields(f) }
func WithError(err error) *Logger         { return Global().WithError(err) }

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
