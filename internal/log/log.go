// Package log provides the process-wide structured logger.
package log

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var Logger zerolog.Logger

func init() {
	Logger = newLogger(os.Getenv("LOG_FORMAT"))
	log.Logger = Logger
}

func newLogger(format string) zerolog.Logger {
	var w zerolog.ConsoleWriter
	if format == "json" {
		return zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	}
	w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(w).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}

// SetDebugMode switches the logger to debug level.
func SetDebugMode() {
	Logger = Logger.Level(zerolog.DebugLevel)
	log.Logger = Logger
}

// Info logs an info message.
func Info() *zerolog.Event { return Logger.Info() }

// Error logs an error message.
func Error() *zerolog.Event { return Logger.Error() }

// Warn logs a warning message.
func Warn() *zerolog.Event { return Logger.Warn() }

// Debug logs a debug message.
func Debug() *zerolog.Event { return Logger.Debug() }

// Fatal logs a fatal message and exits.
func Fatal() *zerolog.Event { return Logger.Fatal() }
