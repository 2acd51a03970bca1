package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// SetupLogger configures the global slog default logger based on the supplied format and level
// strings read from application configuration.
//
// format: "json"  → JSONHandler (machine readable; for pipelines)
//
//	anything else → TextHandler (human readable)
//
// level: "debug", "info", "warn", "error" (case-insensitive); defaults to "info".
//
// Logs go to stderr; stdout is reserved for rendered reports.
func SetupLogger(format, level string) {
	slog.SetDefault(NewLogger(os.Stderr, format, level))
	slog.Debug("logger initialised", "format", format, "level", ParseLevel(level).String())
}

// NewLogger builds a logger writing to w with the given format and level.
func NewLogger(w io.Writer, format, level string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug, // include file:line only when debugging
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
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
