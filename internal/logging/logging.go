package logging

import (
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps LOG_LEVEL values onto slog levels. Unknown values fall
// back to def.
func ParseLevel(s string, def slog.Level) slog.Level {
	switch strings.ToLower(s) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return def
}

// Init installs the default logger. The CLI only shows errors unless
// LOG_LEVEL says otherwise.
func Init() {
	InitWithDefault(slog.LevelError)
}

// InitWithDefault is Init with a different fallback level; the relay logs
// at info by default.
func InitWithDefault(def slog.Level) {
	level := ParseLevel(os.Getenv("LOG_LEVEL"), def)

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
}
