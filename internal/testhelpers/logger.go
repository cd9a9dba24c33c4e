// Package testhelpers holds test doubles shared by the package tests.
package testhelpers

import (
	"github.com/myrjola/vera/internal/logging"
	"io"
	"log/slog"
)

// NewLogger returns a debug level text logger writing to logSink, usually [io.Discard]. It is built like the
// application logger so that tests exercise the same handler chain.
func NewLogger(logSink io.Writer) *slog.Logger {
	logger, err := logging.NewLogger(logSink, logging.Options{
		Level:          "debug",
		Format:         "text",
		AddSource:      false,
		LoggerProvider: nil,
		ServiceName:    "vera-test",
	})
	if err != nil {
		panic(err) // the options are constant
	}
	return logger
}
