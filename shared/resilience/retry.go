package resilience

import (
	"context"
	"time"
)

type RetryConfig struct {
	MaxAttempts        uint
	InitialDelay       time.Duration
	MaxDelay           time.Duration
	UseProviderBackoff bool
	BackoffMultiplier  float64
}

type RetryHook interface {
	OnRetryAttempt(ctx context.Context, attempt uint, err error, nextDelay time.Duration)
	OnRetrySuccess(ctx context.Context, attempts uint, totalDuration time.Duration)
	OnRetryFailure(ctx context.Context, err error, attempts uint, totalDuration time.Duration)
}

// Retryable reports whether an error is worth another attempt and, when the
// upstream supplied a backoff hint, how long to wait before it.
type Retryable interface {
	Retryable() (bool, time.Duration)
}

// Do runs fn up to cfg.MaxAttempts times with exponential backoff between
// attempts. Errors that implement Retryable and decline a retry stop the
// loop immediately, as does context cancellation.
func Do(ctx context.Context, cfg RetryConfig, hook RetryHook, fn func(ctx context.Context) error) error {
	start := time.Now()
	delay := cfg.InitialDelay

	var err error
	for attempt := uint(1); attempt <= cfg.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			if hook != nil {
				hook.OnRetrySuccess(ctx, attempt, time.Since(start))
			}
			return nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		next := delay
		if r, ok := err.(Retryable); ok {
			retryable, after := r.Retryable()
			if !retryable {
				break
			}
			if cfg.UseProviderBackoff && after > 0 {
				next = after
			}
		}
		if cfg.MaxDelay > 0 && next > cfg.MaxDelay {
			next = cfg.MaxDelay
		}

		if hook != nil {
			hook.OnRetryAttempt(ctx, attempt, err, next)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(next):
		}

		if cfg.BackoffMultiplier > 1 {
			delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
		}
	}

	if hook != nil {
		hook.OnRetryFailure(ctx, err, cfg.MaxAttempts, time.Since(start))
	}
	return err
}
