// Package logging builds the process-wide slog logger from configuration.
package logging

import (
	"io"
	"log/slog"

	"github.com/flozac77/StreamZilla/internal/config"
)

// New returns a logger writing to w in the configured format and level.
// Any format other than "text" is JSON.
func New(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
