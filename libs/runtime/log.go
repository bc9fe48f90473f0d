package runtime

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/md-rashed-zaman/groomly/libs/config"
)

// NewLogger returns a JSON logger tagged with the service name. The level
// comes from LOG_LEVEL (debug, info, warn, error) and defaults to info.
func NewLogger(service string) *slog.Logger {
	return NewLoggerTo(os.Stdout, service, ParseLevel(config.String("LOG_LEVEL", "info")))
}

func NewLoggerTo(w io.Writer, service string, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(h).With("service", service)
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// DiscardLogger is used by tests and by components constructed without a logger.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
