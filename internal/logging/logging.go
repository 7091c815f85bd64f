// Package logging provides the leveled, printf-style logger used throughout
// assetpack, backed by zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

// Levels maps level names to values. It doubles as the enumflag mapping for
// the --log-level CLI flag.
var Levels = map[Level][]string{
	Debug: {"debug"},
	Info:  {"info"},
	Warn:  {"warn", "warning"},
	Error: {"error"},
}

type Format int

const (
	Console Format = iota
	JSON
)

var Formats = map[Format][]string{
	Console: {"console", "text"},
	JSON:    {"json"},
}

// ParseLevel returns the named level. Unknown or empty names yield Info.
func ParseLevel(s string) Level {
	for l, names := range Levels {
		for _, n := range names {
			if strings.EqualFold(n, s) {
				return l
			}
		}
	}
	return Info
}

// ParseFormat returns the named format. Unknown or empty names yield Console.
func ParseFormat(s string) Format {
	if strings.EqualFold(s, "json") {
		return JSON
	}
	return Console
}

type Config struct {
	Level  Level
	Format Format
	Output io.Writer // os.Stderr if nil
}

type Logger struct {
	log zerolog.Logger
}

func New(c Config) *Logger {
	w := c.Output
	if w == nil {
		w = os.Stderr
	}

	if c.Format == Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}

	return &Logger{log: zerolog.New(w).Level(c.Level.zerolog()).With().Timestamp().Logger()}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{log: zerolog.Nop()}
}

// With returns a child logger that adds the given field to every entry.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{log: l.log.With().Str(key, value).Logger()}
}

func (l *Logger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case Debug:
		return zerolog.DebugLevel
	case Warn:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
