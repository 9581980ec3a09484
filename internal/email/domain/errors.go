package domain

import (
	"errors"
	"fmt"
	"time"
)

// Pipeline error taxonomy. Per-item errors (one message, one attachment, one
// analysis result) are recovered locally and counted; run-level errors abort
// the run and surface with partial statistics.
var (
	// ErrMalformedMessage: a fetched message is missing required fields
	// (identity, timestamp). Fatal for that message only.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrAuthExpired: the remote provider rejected our credentials. Fatal
	// for the run until re-authentication happens externally.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrTransient: a retryable remote failure (network, 5xx).
	ErrTransient = errors.New("transient remote error")

	// ErrQuotaExceeded: the AI service ran out of quota. Retryable.
	ErrQuotaExceeded = errors.New("ai quota exceeded")

	// ErrTimeout: the AI service timed out. Retryable.
	ErrTimeout = errors.New("ai request timeout")

	// ErrMalformedResponse: the AI service returned a response we cannot
	// parse at all. Not retryable.
	ErrMalformedResponse = errors.New("malformed ai response")
)

// RateLimitedError is a transient remote failure carrying the provider's
// requested wait time.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Unwrap makes errors.Is(err, ErrTransient) true for rate limits
func (e *RateLimitedError) Unwrap() error {
	return ErrTransient
}

// IsRetryable reports whether an error is worth retrying with backoff
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrTimeout)
}

// RetryAfter extracts the provider-requested wait time, if any
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
