package main

import (
	"log/slog"
	"os"
	"strings"
)

// configureLogger builds a text-handler slog.Logger at the level named in
// arborist.toml's general.log_level, defaulting to info on an unknown value.
func configureLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
