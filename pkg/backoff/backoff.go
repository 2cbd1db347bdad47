// Package backoff implements the retry policy shared by every upstream
// provider client: transient failures (timeouts, 5xx, rate limits) are
// retried up to three times with exponential backoff and +/-20% jitter.
package backoff

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"time"
)

// Retry policy for transient upstream failures: exponential backoff
// capped at maxAttempts tries, with +/-20% jitter so synchronized
// clients don't stampede a recovering provider.
const (
	maxAttempts = 3
	baseBackoff = 500 * time.Millisecond
	jitterRatio = 0.2
)

// Retryable reports whether an upstream error is worth retrying:
// timeouts, connection failures, and 5xx/rate-limit responses. Context
// cancellation is never retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{
		"status code: 5",
		"status code: 429",
		"rate limit",
		"connection refused",
		"connection reset",
		"timeout",
		"temporarily unavailable",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Retry runs fn up to maxAttempts times, backing off exponentially with
// jitter between attempts. Non-retryable errors surface immediately.
func Retry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var result T
	var err error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err = fn()
		if err == nil || !Retryable(err) {
			return result, err
		}
		if attempt == maxAttempts-1 {
			break
		}

		backoff := baseBackoff << attempt
		jitter := time.Duration((rand.Float64()*2 - 1) * jitterRatio * float64(backoff))
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(backoff + jitter):
		}
	}
	return result, err
}
