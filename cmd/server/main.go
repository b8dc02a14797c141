// Package main is the entry point for the Wayfarer server. Subcommands
// serve the API, apply migrations, and assign roles from the operator's
// shell.
package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/keyxmakerx/wayfarer/internal/config"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging configures the global slog logger based on the environment.
// Development uses text format for readability. Production uses JSON for
// structured log aggregation.
func setupLogging(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel, cfg.IsDevelopment())}

	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// parseLevel reads LOG_LEVEL, falling back to debug in development and
// info elsewhere.
func parseLevel(s string, dev bool) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		if dev {
			return slog.LevelDebug
		}
		return slog.LevelInfo
	}
	return level
}
