package config

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger: JSON lines in production, text otherwise.
func NewLogger(a App, component string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var h slog.Handler
	if a.Production() {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		opts.Level = slog.LevelDebug
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h).With("component", component)
}
