package main

import (
	"context"
	"github.com/myrjola/vera/internal/e2etest"
	"github.com/myrjola/vera/internal/errors"
	"github.com/myrjola/vera/internal/logging"
	"log/slog"
	"net/http"
	"os"
	"time"
)

var errUnexpectedResponse = errors.NewSentinel("unexpected response")

// TestAPI checks that the service answers and validates submissions without starting an investigation.
func TestAPI(client *e2etest.Client) error {
	ctx := context.Background()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second) //nolint:mnd // 10 seconds
	defer cancel()

	var health struct {
		Status string `json:"status"`
	}
	if err := client.GetJSON(ctx, "/api/healthy", &health); err != nil {
		return errors.Wrap(err, "check health")
	}
	if health.Status != "ok" {
		return errors.Wrap(errUnexpectedResponse, "check health", slog.String("status", health.Status))
	}

	var rejected struct {
		Error string `json:"error"`
	}
	status, err := client.PostJSON(ctx, "/api/investigations", map[string]string{"input": " "}, &rejected)
	if err != nil {
		return errors.Wrap(err, "submit empty input")
	}
	if status != http.StatusUnprocessableEntity || rejected.Error == "" {
		return errors.Wrap(errUnexpectedResponse, "submit empty input",
			slog.Int("status", status), slog.String("error", rejected.Error))
	}

	var list []map[string]any
	if err = client.GetJSON(ctx, "/api/investigations", &list); err != nil {
		return errors.Wrap(err, "list investigations")
	}
	return nil
}

func main() {
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only hostname to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <hostname>")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		url      = "https://" + hostname
		client   *e2etest.Client
		err      error
	)
	ctx = logging.WithAttrs(ctx, slog.String("hostname", url))

	if client, err = e2etest.NewClient(url); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating client", errors.SlogError(err))
		os.Exit(1)
	}
	if err = TestAPI(client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing api", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌")
	os.Exit(0)
}
