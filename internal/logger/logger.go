// Package logger exposes the process-wide structured logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Log is the shared logger. It writes JSON to stderr at info level until Init
// is called.
var Log = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Init configures level and output format. Unknown levels fall back to info.
func Init(level string, pretty bool) {
	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	Log = zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// SetOutput redirects the logger, keeping the current level. Tests use it to
// capture or silence output.
func SetOutput(w io.Writer) {
	Log = zerolog.New(w).Level(Log.GetLevel()).With().Timestamp().Logger()
}

// ParseLevel maps a config string to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// LogError writes err with a message and optional context fields.
func LogError(err error, msg string, fields map[string]interface{}) {
	Log.Error().Err(err).Fields(fields).Msg(msg)
}
