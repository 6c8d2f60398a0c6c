package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Gateway is the transport abstraction strategies speak to. It performs no
// business logic and no retries of its own; retry policy belongs to the
// calling strategy.
type Gateway interface {
	Name() string

	// Complete submits a prompt and blocks until the full completion text
	// is available.
	Complete(ctx context.Context, systemPrompt, prompt string, opts ...CompleteOption) (string, error)

	// CompleteStreaming submits a prompt and invokes onToken for each
	// incremental piece of output, returning the accumulated text.
	CompleteStreaming(ctx context.Context, systemPrompt, prompt string, onToken func(ctx context.Context, token string), opts ...CompleteOption) (string, error)
}

type CompleteOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

type CompleteOption func(*CompleteOptions)

func WithModel(model string) CompleteOption {
	return func(o *CompleteOptions) {
		o.Model = model
	}
}

func WithMaxTokens(maxTokens int) CompleteOption {
	return func(o *CompleteOptions) {
		o.MaxTokens = maxTokens
	}
}

func WithTemperature(temperature float64) CompleteOption {
	return func(o *CompleteOptions) {
		o.Temperature = temperature
	}
}

func WithTimeout(timeout time.Duration) CompleteOption {
	return func(o *CompleteOptions) {
		o.Timeout = timeout
	}
}

func ResolveOptions(opts ...CompleteOption) *CompleteOptions {
	o := &CompleteOptions{
		MaxTokens:   4096,
		Temperature: 0.7,
		Timeout:     2 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// callContext applies the per-call timeout from options.
func callContext(ctx context.Context, o *CompleteOptions) (context.Context, context.CancelFunc) {
	if o.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.Timeout)
}

type ErrorKind string

const (
	ErrorKindUnavailable ErrorKind = "unavailable"
	ErrorKindRateLimited ErrorKind = "rate_limited"
	ErrorKindMalformed   ErrorKind = "malformed_response"
	ErrorKindCanceled    ErrorKind = "canceled"
)

// Error is the gateway's failure report. A timed-out call is reported as
// unavailable; classification beyond that is per upstream status.
type Error struct {
	Provider   string
	Kind       ErrorKind
	RetryAfter time.Duration
	Err        error
}

func NewError(provider string, kind ErrorKind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

func (e *Error) Message() string {
	switch e.Kind {
	case ErrorKindUnavailable:
		return "provider unavailable"
	case ErrorKindRateLimited:
		if e.RetryAfter > 0 {
			return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
		}
		return "rate limited"
	case ErrorKindMalformed:
		return "malformed provider response"
	case ErrorKindCanceled:
		return "request canceled"
	default:
		return "unknown provider error"
	}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Message(), e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable implements resilience.Retryable. Cancellation is never retried;
// the caller decides whether malformed responses are worth another attempt,
// so they are reported retryable here and bounded by strategy retry budgets.
func (e *Error) Retryable() (bool, time.Duration) {
	switch e.Kind {
	case ErrorKindRateLimited:
		return true, e.RetryAfter
	case ErrorKindUnavailable, ErrorKindMalformed:
		return true, 0
	default:
		return false, 0
	}
}

// classify wraps a transport error, folding context timeouts into the
// unavailable kind and cancellations into canceled.
func classify(provider string, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return NewError(provider, ErrorKindCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(provider, ErrorKindUnavailable, err)
	}
	return NewError(provider, ErrorKindUnavailable, err)
}
