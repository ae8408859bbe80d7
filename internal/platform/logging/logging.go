package logging

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the process logger. Development gets the human readable console
// writer, everything else gets JSON lines. Unknown levels fall back to info.
func New(env, level string, out io.Writer) zerolog.Logger {
	var logger zerolog.Logger
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(out).With().Timestamp().Logger()
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}
