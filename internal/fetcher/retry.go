package fetcher

import (
	"context"
	"time"
)

// RetryPolicy configures exponential backoff between fetch attempts
type RetryPolicy struct {
	MaxAttempts int           // Total attempts including the first
	BaseDelay   time.Duration // Delay after the first failure
	MaxDelay    time.Duration // Upper bound for any delay
	Multiplier  float64       // Growth factor between delays
}

// DefaultRetryPolicy returns 3 attempts with 1s, 2s delays capped at 30s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
	}
}

// Delay returns the wait after the given failed attempt (1-based)
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d > p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// retryWithBackoff runs fn until it succeeds, returns a non-retryable error,
// or the attempts are exhausted. Context cancellation stops retrying.
func retryWithBackoff[T any](ctx context.Context, p RetryPolicy, retryable func(error) bool, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !retryable(err) || attempt == attempts {
			break
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}
