package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Configure builds the process logger. Format "console" gives human
// readable output; anything else writes JSON lines.
func Configure(level, format string) zerolog.Logger {
	return New(os.Stdout, level, format)
}

// New builds a logger writing to out.
func New(out io.Writer, level, format string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02T15:04:05.000"}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Str("app", "sbu").Logger()
}

// WithCategory tags log lines with the operation they belong to.
func WithCategory(log zerolog.Logger, category string) zerolog.Logger {
	return log.With().Str("category", category).Logger()
}
