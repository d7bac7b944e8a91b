package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// Log levels accepted in configuration.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// FileName is the debug log file name inside the log directory.
const FileName = "debug.log"

// Logger writes structured JSON log lines. It is safe for concurrent use;
// child loggers from the With* methods share the parent's writer.
type Logger struct {
	logger *slog.Logger
	out    *output
}

// output is the writer shared by a logger and all of its children.
type output struct {
	mu     sync.Mutex
	closer io.Closer
}

// NewLogger opens <dir>/debug.log with size-based rotation. An empty dir
// logs to stderr.
func NewLogger(dir, level string, rotation RotationConfig) (*Logger, error) {
	var w io.Writer = os.Stderr
	out := &output{}

	if dir != "" {
		rw, err := NewRotatingWriter(afero.NewOsFs(), filepath.Join(dir, FileName), rotation)
		if err != nil {
			return nil, err
		}
		w = rw
		out.closer = rw
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &Logger{logger: slog.New(handler), out: out}, nil
}

// NopLogger returns a Logger that discards everything.
func NopLogger() *Logger {
	return &Logger{
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
		out:    &output{},
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn, "WARNING":
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel normalizes a user-supplied level, defaulting to INFO.
func ParseLevel(level string) string {
	switch parseLevel(level) {
	case slog.LevelDebug:
		return LevelDebug
	case slog.LevelWarn:
		return LevelWarn
	case slog.LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// ValidLevels returns the accepted level names.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}

// IsValidLevel reports whether level names one of ValidLevels.
func IsValidLevel(level string) bool {
	up := strings.ToUpper(level)
	for _, l := range ValidLevels() {
		if l == up {
			return true
		}
	}
	return false
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	if l == nil || len(args) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(args...), out: l.out}
}

// WithSession tags entries with the session log's ID so both logs can be
// correlated.
func (l *Logger) WithSession(id string) *Logger {
	return l.With("session_id", id)
}

// WithComponent tags entries with the emitting package, e.g. "appliance".
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

// WithCommand tags entries with the CLI command path, e.g. "pimgr stats top".
func (l *Logger) WithCommand(path string) *Logger {
	return l.With("command", path)
}

func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	if l == nil {
		return
	}
	l.logger.Log(context.Background(), level, msg, args...)
}

// Close closes the underlying file. Closing a stderr or nop logger, or
// closing twice, is a no-op.
func (l *Logger) Close() error {
	if l == nil || l.out == nil {
		return nil
	}
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if l.out.closer == nil {
		return nil
	}
	err := l.out.closer.Close()
	l.out.closer = nil
	if err != nil {
		return fmt.Errorf("failed to close debug log: %w", err)
	}
	return nil
}
