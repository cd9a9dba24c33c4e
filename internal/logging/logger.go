package logging

import (
	"github.com/myrjola/vera/internal/errors"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log"
	"io"
	"log/slog"
	"strings"
)

var ErrInvalidLevel = errors.NewSentinel("invalid log level")

// Options configure the logger built by NewLogger.
type Options struct {
	// Level is one of debug, info, warn or error.
	Level string
	// Format is text or json.
	Format string
	// AddSource adds the file:line of the log call.
	AddSource bool
	// LoggerProvider sends the records to OpenTelemetry instead of the writer when set.
	LoggerProvider log.LoggerProvider
	// ServiceName scopes the OpenTelemetry logger.
	ServiceName string
}

// NewLogger builds the application logger. All handlers are wrapped in [ContextHandler].
func NewLogger(w io.Writer, opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, errors.Wrap(err, "parse level")
	}
	handlerOptions := &slog.HandlerOptions{
		AddSource:   opts.AddSource,
		Level:       level,
		ReplaceAttr: nil,
	}
	var handler slog.Handler
	switch {
	case opts.LoggerProvider != nil:
		handler = otelslog.NewHandler(opts.ServiceName, otelslog.WithLoggerProvider(opts.LoggerProvider))
	case strings.EqualFold(opts.Format, "json"):
		handler = slog.NewJSONHandler(w, handlerOptions)
	default:
		handler = slog.NewTextHandler(w, handlerOptions)
	}
	return slog.New(NewContextHandler(handler)), nil
}

// ParseLevel maps a textual level to [slog.Level]. Empty input means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.Wrap(ErrInvalidLevel, "unknown level", slog.String("level", s))
	}
}
