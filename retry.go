package main

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// RetryPolicy is the single retry contract shared by every network call site.
type RetryPolicy struct {
	MaxAttempts int
	// Backoff returns the delay before the given attempt (1-based). Attempt 1
	// runs immediately.
	Backoff func(attempt int) time.Duration
}

// LinearBackoff scales the base delay by the attempt number.
func LinearBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt-1) * base
	}
}

// Do runs fn up to MaxAttempts times, sleeping per Backoff between attempts.
// Context cancellation cuts the loop short.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && p.Backoff != nil {
			select {
			case <-time.After(p.Backoff(attempt)):
			case <-ctx.Done():
				return errors.CombineErrors(ctx.Err(), lastErr)
			}
		}
		if err := fn(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return errors.Wrapf(lastErr, "exhausted %d attempts", attempts)
}
