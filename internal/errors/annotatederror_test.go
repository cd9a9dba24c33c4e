package errors_test

import (
	"context"
	"github.com/myrjola/vera/internal/errors"
	"github.com/stretchr/testify/require"
	"log/slog"
	"slices"
	"testing"
)

func TestAnnotatedError(t *testing.T) {
	err := errors.New("test error", slog.String("id", "123"))
	require.Equal(t, "test error", err.Error())

	// Assert that wrapping sentinel errors work as expected.
	sentinel := errors.NewSentinel("test error")
	require.NotErrorIs(t, err, errors.NewSentinel("test error"))
	wrapped := errors.Wrap(sentinel, "load stage")
	require.ErrorIs(t, wrapped, sentinel)
	require.Equal(t, "load stage: test error", wrapped.Error())

	// Ensure log values are coming through.
	var annotated *errors.AnnotatedError
	require.True(t, errors.As(err, &annotated))
	group := annotated.LogValue().Group()
	require.Contains(t, group, slog.String("id", "123"))

	// Assert there's a valid source
	sourceIdx := slices.IndexFunc(group, func(attr slog.Attr) bool {
		return attr.Key == "source"
	})
	require.NotEqual(t, -1, sourceIdx)
	require.Contains(t, group[sourceIdx].Value.String(), "annotatederror_test.go")
}

func TestWrapNil(t *testing.T) {
	require.NoError(t, errors.Wrap(nil, "nothing to wrap"))
}

func TestSlogError(t *testing.T) {
	base := errors.Wrap(context.DeadlineExceeded, "generate", slog.String("stage", "critic"))
	joined := errors.Join(base, errors.New("second", slog.Int("attempt", 2)))
	err := errors.Wrap(joined, "run investigation", slog.String("session_id", "abc"))

	attr := errors.SlogError(err)
	require.Equal(t, "error", attr.Key)
	group := attr.Value.Group()
	require.Contains(t, group, slog.String("stage", "critic"))
	require.Contains(t, group, slog.Int("attempt", 2))
	require.Contains(t, group, slog.String("session_id", "abc"))

	traceIdx := slices.IndexFunc(group, func(attr slog.Attr) bool {
		return attr.Key == "trace"
	})
	require.NotEqual(t, -1, traceIdx)
	trace, ok := group[traceIdx].Value.Any().([]string)
	require.True(t, ok)
	require.Len(t, trace, 3)
	require.Contains(t, trace[0], "run investigation")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSlogErrorNil(t *testing.T) {
	require.Equal(t, slog.String("error", "<nil>"), errors.SlogError(nil))
}
