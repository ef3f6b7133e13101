package infra

import (
	"io"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger constructs the process logger. Development gets a console writer
// at debug level, everything else JSON at info level.
func NewLogger(appEnv, service string) zerolog.Logger {
	return newLogger(os.Stdout, appEnv, service)
}

func newLogger(out io.Writer, appEnv, service string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).
		Level(level).
		With().
		Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	return ctx.Logger()
}

// Logger aliases zerolog.Logger for packages that only pass loggers around.
type Logger = zerolog.Logger

// newStdLogger routes net/http's internal error log through zerolog.
func newStdLogger(logger zerolog.Logger) *log.Logger {
	return log.New(logger.With().Str("source", "net/http").Logger(), "", 0)
}
