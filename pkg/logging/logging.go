// Package logging builds the zerolog loggers used across the applier.
//
// Components take a zerolog.Logger by value and default to zerolog.Nop(), so
// a library user who never calls New gets silence.
//
// Example:
//
//	cfg := config.LoadFromEnv()
//	log, closer, err := logging.New(cfg.Logging)
//	if err != nil {
//		return err
//	}
//	defer closer.Close()
//	log.Info().Str("data_dir", cfg.Database.DataDir).Msg("starting")
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/orneryd/nornicapply/pkg/config"
)

// New returns a logger configured by cfg and the closer for its output.
// Closing is a no-op for stdout and stderr.
func New(cfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	var out io.Writer
	var closer io.Closer = nopCloser{}
	switch cfg.Output {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("opening log output: %w", err)
		}
		out, closer = f, f
	}

	return NewWithWriter(out, cfg.Format, level), closer, nil
}

// NewWithWriter returns a logger writing to w. Format "json" writes one JSON
// object per line; anything else writes human-readable console output.
func NewWithWriter(w io.Writer, format string, level zerolog.Level) zerolog.Logger {
	if !strings.EqualFold(format, "json") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level. Empty means info.
func ParseLevel(name string) (zerolog.Level, error) {
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
