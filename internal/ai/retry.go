package ai

import (
	"context"
	"fmt"
	"github.com/myrjola/vera/internal/errors"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
	"log/slog"
	"net/http"
	"slices"
	"time"
)

// ErrTransient marks rate limiting and server faults of a generation backend.
var ErrTransient = errors.NewSentinel("transient capability error")

// TransientError is a backend failure with a status code listed in the retry policy.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error (status %d %s): %v", e.StatusCode, http.StatusText(e.StatusCode), e.Err)
}

func (e *TransientError) Unwrap() []error {
	return []error{ErrTransient, e.Err}
}

// RetryPolicy configures exponential backoff for transient failures.
type RetryPolicy struct {
	// Attempts is the maximum number of calls including the first one.
	Attempts     int
	InitialDelay time.Duration
	// Multiplier grows the delay after each failed attempt.
	Multiplier float64
	// StatusCodes lists the HTTP status codes considered transient.
	StatusCodes []int
}

// DefaultRetryPolicy waits 1s, 7s, 49s and 343s between five attempts.
func DefaultRetryPolicy() RetryPolicy { //nolint:mnd // see above
	return RetryPolicy{
		Attempts:     5,
		InitialDelay: time.Second,
		Multiplier:   7,
		StatusCodes:  []int{http.StatusTooManyRequests, 500, 503, 504},
	}
}

// Retrying decorates a Generator with RetryPolicy.
//
// An attempt that already delivered a delta to onDelta is never retried. Without onDelta nothing is exposed,
// so every attempt may be retried.
type Retrying struct {
	next   Generator
	policy RetryPolicy
	logger *slog.Logger
}

func NewRetrying(next Generator, policy RetryPolicy, logger *slog.Logger) *Retrying {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 1
	}
	return &Retrying{
		next:   next,
		policy: policy,
		logger: logger.With("source", "Retrying"),
	}
}

func (r *Retrying) Generate(ctx context.Context, req Request, onDelta DeltaFunc) (Response, error) {
	delay := r.policy.InitialDelay
	for attempt := 1; ; attempt++ {
		delivered := false
		resp, err := r.next.Generate(ctx, req, func(delta string) error {
			if onDelta != nil && delta != "" {
				delivered = true
			}
			return emit(onDelta, delta)
		})
		if err == nil {
			return resp, nil
		}

		status, hasStatus := StatusCode(err)
		transient := hasStatus && slices.Contains(r.policy.StatusCodes, status)
		if transient {
			err = &TransientError{StatusCode: status, Err: err}
		}
		if !transient || delivered || attempt >= r.policy.Attempts || ctx.Err() != nil {
			return Response{}, errors.Wrap(err, "generate",
				slog.String("stage", req.Stage), slog.Int("attempts", attempt))
		}

		r.logger.LogAttrs(ctx, slog.LevelWarn, "retrying transient failure",
			slog.String("stage", req.Stage),
			slog.Int("attempt", attempt),
			slog.Int("status", status),
			slog.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return Response{}, errors.Wrap(ctx.Err(), "wait before retry", slog.String("stage", req.Stage))
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * r.policy.Multiplier)
	}
}

// StatusCode extracts the HTTP status code from errors of the supported backends.
func StatusCode(err error) (int, bool) {
	var transient *TransientError
	if errors.As(err, &transient) {
		return transient.StatusCode, true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode, true
	}
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) && geminiErr.Code != 0 {
		return geminiErr.Code, true
	}
	var googleErr *googleapi.Error
	if errors.As(err, &googleErr) && googleErr.Code != 0 {
		return googleErr.Code, true
	}
	return 0, false
}
