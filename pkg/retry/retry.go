// Package retry implements bounded exponential backoff for remote calls.
package retry

import (
	"context"
	"time"

	"mailmind/internal/email/domain"
)

// Policy bounds how often and how long an operation is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy matches the remote API rate limits we deal with in practice
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Delay computes the backoff before the given retry attempt (1-based).
// Doubles each attempt, capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Do runs fn, retrying retryable failures with exponential backoff. A
// provider-requested wait (rate limit Retry-After) overrides the computed
// delay. Non-retryable errors and context cancellation return immediately.
func Do(ctx context.Context, policy Policy, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !domain.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.Delay(attempt)
		if after, ok := domain.RetryAfter(lastErr); ok && after > 0 {
			delay = after
			if delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
