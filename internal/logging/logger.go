// Package logging builds the process logger.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Logger = zerolog.Logger

// New returns a JSON logger writing to out, or a human-readable console
// logger when env is "development". An unknown level falls back to info.
func New(out io.Writer, level, env string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if env == "development" && level == "" {
		lvl = zerolog.DebugLevel
	}

	logger := zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Logger()

	if env == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	return logger
}
