// Package observability builds the process logger and Prometheus collectors.
package observability

import (
	"io"
	"os"
	"time"

	"github.com/alagamento-br/apiserver/config"
	"github.com/rs/zerolog"
)

// NewLogger returns a zerolog logger writing to stdout.
func NewLogger(cfg config.Config) zerolog.Logger {
	return newLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
}

func newLogger(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	out := w
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "alagamento-api").Logger()
}
