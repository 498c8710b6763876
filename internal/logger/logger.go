// Package logger provides leveled, file-backed logging for the agent
// engine. A process-wide instance is initialized once at startup; packages
// either use the global helpers or carry a prefixed child logger.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level is a logging verbosity level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

// ParseLevel parses a level name, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "none":
		return LevelNone
	default:
		return LevelInfo
	}
}

func (l Level) slogLevel() slog.Level {
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

// Logger wraps a slog.Logger with printf-style helpers and a component
// prefix.
type Logger struct {
	sl     *slog.Logger
	level  *slog.LevelVar
	file   *os.File
	prefix string
}

var (
	global   *Logger
	globalMu sync.Mutex
)

// Init initializes the global logger. Level none or an empty path yields a
// no-op logger.
func Init(level Level, logPath string) error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global != nil {
		return nil
	}
	l, err := New(level, logPath)
	if err != nil {
		return err
	}
	global = l
	return nil
}

// New creates a logger writing to the given file path.
func New(level Level, logPath string) (*Logger, error) {
	lv := new(slog.LevelVar)
	lv.Set(level.slogLevel())

	if level == LevelNone || logPath == "" {
		return &Logger{sl: slog.New(discardHandler{}), level: lv}, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	h := slog.NewTextHandler(f, &slog.HandlerOptions{Level: lv})
	return &Logger{sl: slog.New(h), level: lv, file: f}, nil
}

// NewWriter creates a logger writing to an arbitrary writer. Used in tests.
func NewWriter(level Level, w io.Writer) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(level.slogLevel())
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})
	return &Logger{sl: slog.New(h), level: lv}
}

// Global returns the global logger, a no-op instance if Init was never
// called.
func Global() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		lv := new(slog.LevelVar)
		global = &Logger{sl: slog.New(discardHandler{}), level: lv}
	}
	return global
}

// WithPrefix returns a child logger tagged with a component name.
func (l *Logger) WithPrefix(prefix string) *Logger {
	p := prefix
	if l.prefix != "" {
		p = l.prefix + ":" + prefix
	}
	return &Logger{
		sl:     l.sl.With(slog.String("component", p)),
		level:  l.level,
		file:   l.file,
		prefix: p,
	}
}

// SetLevel adjusts the verbosity at runtime.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level.slogLevel())
}

func (l *Logger) Debug(format string, args ...any) {
	l.sl.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...any) {
	l.sl.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	l.sl.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	l.sl.Error(fmt.Sprintf(format, args...))
}

// Close closes the underlying log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Convenience helpers on the global instance.

func Debug(format string, args ...any) { Global().Debug(format, args...) }
func Info(format string, args ...any)  { Global().Info(format, args...) }
func Warn(format string, args ...any)  { Global().Warn(format, args...) }
func Error(format string, args ...any) { Global().Error(format, args...) }

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
