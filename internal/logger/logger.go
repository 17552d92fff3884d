// Package logger provides a configured zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"

	"github.com/celerix-dev/celerix-market/internal/config"
)

func init() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
}

// New returns a logger writing to stdout per cfg.
func New(cfg config.LogConfig) zerolog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	if strings.EqualFold(cfg.Format, "console") || strings.EqualFold(cfg.Format, "text") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	service := cfg.Service
	if service == "" {
		service = "celerix-market"
	}
	return zerolog.New(w).Level(level).With().
		Str("service", service).
		Timestamp().
		Logger()
}
