package logging

import (
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// BadgerLogger routes badger's internal logging into zerolog. Badger's info
// chatter is demoted to debug.
type BadgerLogger struct {
	zlog zerolog.Logger
}

// NewBadgerLogger wraps log, tagging every entry with the store name.
func NewBadgerLogger(log zerolog.Logger, store string) *BadgerLogger {
	return &BadgerLogger{zlog: log.With().Str("store", store).Logger()}
}

func (l *BadgerLogger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(trim(format), args...)
}

func (l *BadgerLogger) Warningf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(trim(format), args...)
}

func (l *BadgerLogger) Infof(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(trim(format), args...)
}

func (l *BadgerLogger) Debugf(format string, args ...interface{}) {
	l.zlog.Trace().Msgf(trim(format), args...)
}

// badger terminates most messages with a newline
func trim(format string) string {
	return strings.TrimRight(format, "\n")
}

var _ badger.Logger = (*BadgerLogger)(nil)
