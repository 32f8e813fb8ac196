package observability

import (
	"io"
	"log/slog"
)

// NewLogger returns a JSON slog.Logger writing to w at the named level.
// Unknown levels fall back to info.
func NewLogger(w io.Writer, level, service string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	if service != "" {
		logger = logger.With(slog.String("service", service))
	}
	return logger
}
