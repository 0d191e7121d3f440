package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Setup returns the process logger writing to stderr.
// Development mode logs at debug level through a console writer.
func Setup(dev bool) zerolog.Logger {
	return New(os.Stderr, dev)
}

// New builds a logger on w. JSON at info level unless dev is set.
func New(w io.Writer, dev bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	if !dev {
		return zerolog.New(w).Level(level).With().Timestamp().Caller().Logger()
	}

	console := zerolog.ConsoleWriter{Out: w, FormatTimestamp: func(i any) string {
		return time.Now().Format(time.RFC3339)
	}}

	return zerolog.New(console).Level(level).With().Timestamp().Caller().Stack().Logger()
}
