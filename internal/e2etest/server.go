// Package e2etest starts the web binary in-process and talks to it over HTTP.
package e2etest

import (
	"context"
	"github.com/myrjola/vera/internal/errors"
	"github.com/myrjola/vera/internal/logging"
	"io"
	"log/slog"
	"testing"
)

// LogAddrKey is the attribute key the server logs its listening address with.
const LogAddrKey = "addr"

var errTestFinished = errors.NewSentinel("test finished")

// RunFunc has the signature of the run function of cmd/web.
type RunFunc func(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error

type Server struct {
	url    string
	client *Client
}

// StartServer runs the server until the test finishes and returns once it answers on /api/healthy. The cleanup
// waits for run to return so that the database is closed before the next test starts.
//
// logSink receives the server logs, usually [io.Discard]. lookupEnv has the signature of [os.LookupEnv]. run must
// log the address it listens on with [LogAddrKey].
func StartServer(
	t testing.TB,
	logSink io.Writer,
	lookupEnv func(string) (string, bool),
	run RunFunc,
) (*Server, error) {
	t.Helper()
	ctx, cancel := context.WithCancelCause(context.Background())
	addrCh := make(chan string, 1)
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(logSink, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == LogAddrKey {
				select {
				case addrCh <- a.Value.String():
				default:
				}
			}
			return a
		},
	})))

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if err := run(ctx, logger, lookupEnv); err != nil {
			cancel(err)
		}
	}()
	t.Cleanup(func() {
		cancel(errTestFinished)
		<-stopped
	})

	select {
	case <-ctx.Done():
		return nil, errors.Wrap(context.Cause(ctx), "server stopped before it was ready")
	case addr := <-addrCh:
		serverURL := "http://" + addr
		client, err := NewClient(serverURL)
		if err != nil {
			return nil, errors.Wrap(err, "new client")
		}
		if err = client.WaitForReady(ctx, "/api/healthy"); err != nil {
			return nil, errors.Wrap(err, "wait for ready")
		}
		return &Server{url: serverURL, client: client}, nil
	}
}

func (s *Server) URL() string {
	return s.url
}

// Client returns the client of the first visitor.
func (s *Server) Client() *Client {
	return s.client
}
