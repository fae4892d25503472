// Package logger configures the process-wide slog default from env vars,
// so every binary logs the same way without per-module setup.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Setup builds a handler from LOG_LEVEL / LOG_FORMAT and installs it as
// the slog default. Returns the logger for callers that want a handle.
func Setup() *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	var h slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	} else {
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}

	l := slog.New(h)
	slog.SetDefault(l)
	return l
}
