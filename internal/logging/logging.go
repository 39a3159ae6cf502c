// Package logging builds the slog loggers used across corun.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a configured slog.Logger.
//
// level: slog level (DEBUG, INFO, WARN, ERROR)
// format: "text" (human-readable) or "json" (structured)
//
// Output goes to stderr; stdout is reserved for workload output such as the
// lines printed by the demo tasks.
func NewLogger(level slog.Level, format string) *slog.Logger {
	return NewLoggerWithWriter(level, format, os.Stderr)
}

// NewLoggerWithWriter creates a logger writing to the given writer.
func NewLoggerWithWriter(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// Attribute keys shared by every component, so run and task records can be
// correlated across the scheduler, orchestrator and servers.
const (
	KeyComponent = "component"
	KeyRunID     = "run_id"
	KeyTaskID    = "task_id"
	KeyTaskName  = "task_name"
)

// Component returns a child logger tagged with the component name.
func Component(l *slog.Logger, name string) *slog.Logger {
	return l.With(KeyComponent, name)
}

// WithRun returns a child logger tagged with a scheduler run id.
func WithRun(l *slog.Logger, id string) *slog.Logger {
	return l.With(KeyRunID, id)
}

// WithTask returns a child logger tagged with a task's id and name.
func WithTask(l *slog.Logger, id, name string) *slog.Logger {
	return l.With(KeyTaskID, id, KeyTaskName, name)
}

// Discard returns a logger that drops every record. Tests use it.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
