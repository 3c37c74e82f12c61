// Package logging builds the structured logger used by the realtime command.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects level, format and destination.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	Output string // stdout or stderr
}

// New creates a logger for cfg. Unknown values fall back to info, JSON and
// stderr. Every record carries service and version attributes.
func New(cfg Config, version string) *slog.Logger {
	return newWithWriter(cfg, version, output(cfg.Output))
}

func newWithWriter(cfg Config, version string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "realtime"),
		slog.String("version", version),
	})
	return slog.New(handler)
}

func output(name string) io.Writer {
	if strings.ToLower(name) == "stdout" {
		return os.Stdout
	}
	// stdout carries command results.
	return os.Stderr
}

// parseLevel converts a level name to slog.Level, defaulting to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
