// Package logging configures the process wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup sets the global level and output. pretty switches to the console writer.
func Setup(level string, pretty bool) error {
	return SetupWriter(os.Stderr, level, pretty)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level string, pretty bool) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	// handlers that find no logger on their context fall back to the global one
	zerolog.DefaultContextLogger = &log.Logger
	return nil
}
