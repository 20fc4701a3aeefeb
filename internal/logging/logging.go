package logging

import (
	"io"
	"log/slog"
	"strings"
)

// New initializes a new slog logger writing to w and sets it as the
// default. format is "text" (development, with source locations) or
// "json"; level is one of debug, info, warn, error and defaults to debug.
func New(w io.Writer, format, level string) *slog.Logger {
	logger := slog.New(NewHandler(w, format, level))
	slog.SetDefault(logger)
	return logger
}

// NewHandler builds the handler New installs, writing to w.
func NewHandler(w io.Writer, format, level string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	switch format {
	case "json":
		return slog.NewJSONHandler(w, opts)
	default:
		opts.AddSource = true
		return slog.NewTextHandler(w, opts)
	}
}

// ParseLevel maps a level name to a slog.Level, falling back to debug.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}
