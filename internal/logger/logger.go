package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the global logger instance.
var Log zerolog.Logger

// Initialize sets up the global logger with configuration.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().Str("service", "mailroom").Logger()

	Log.Info().Str("level", logLevel.String()).Bool("pretty", pretty).Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger {
	return &Log
}

// Store returns a logger scoped to the embedded database component.
func Store() *zerolog.Logger {
	l := Log.With().Str("component", "store").Logger()
	return &l
}

// WriteQueue returns a logger scoped to the write serializer.
func WriteQueue() *zerolog.Logger {
	l := Log.With().Str("component", "writequeue").Logger()
	return &l
}

// Identity returns a logger scoped to authentication/session events.
func Identity() *zerolog.Logger {
	l := Log.With().Str("component", "identity").Logger()
	return &l
}

// Access returns a logger scoped to authorization decisions.
func Access() *zerolog.Logger {
	l := Log.With().Str("component", "access").Logger()
	return &l
}

// Pipeline returns a logger scoped to the HTTP request middleware chain.
func Pipeline() *zerolog.Logger {
	l := Log.With().Str("component", "pipeline").Logger()
	return &l
}

// Packages returns a logger scoped to package/recipient lifecycle events.
func Packages() *zerolog.Logger {
	l := Log.With().Str("component", "packages").Logger()
	return &l
}

// Audit returns a logger scoped to audit-recording failures.
func Audit() *zerolog.Logger {
	l := Log.With().Str("component", "audit").Logger()
	return &l
}
