package config

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the root logger. A nil writer means stdout.
func NewLogger(cfg LoggingConfig, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if w == nil {
		w = os.Stdout
	}
	output := w
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: w, NoColor: cfg.NoColor}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Str("service", "pricewatch-api").Logger()
}
