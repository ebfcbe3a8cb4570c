// Package retry runs an operation with exponential backoff. Which errors are
// worth another attempt is decided by a caller-supplied Classifier.
package retry

import (
	"context"
	"time"

	"github.com/jpillora/backoff"

	"cryptoScreener/internal/ports"
)

// Classifier decides whether err is retryable. A positive hint overrides the
// computed backoff delay for the next attempt (e.g. an upstream Retry-After).
type Classifier func(err error) (retryable bool, hint time.Duration)

// Policy configures a retry loop.
type Policy struct {
	MaxAttempts int           // Total attempts including the first; values < 1 mean 1
	BaseDelay   time.Duration // Delay before the second attempt, doubled afterwards; a retry hint replaces it as the seed
	MaxDelay    time.Duration // Upper bound for computed delays (0 = 32 x BaseDelay)

	// OnRetry, when set, is called before sleeping for the next attempt.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Do runs op until it succeeds, returns a non-retryable error, the attempts are
// exhausted or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, classify Classifier, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, classify, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, classify Classifier, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 32 * p.BaseDelay
	}
	b := &backoff.Backoff{Min: p.BaseDelay, Max: maxDelay, Factor: 2}

	var (
		zero   T
		seeded bool
	)
	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= attempts || ctx.Err() != nil {
			return zero, err
		}
		retryable, hint := classify(err)
		if !retryable {
			return zero, err
		}

		if hint > 0 && !seeded {
			// The first upstream hint seeds the doubling.
			seeded = true
			b = &backoff.Backoff{Min: hint, Max: maxDuration(maxDelay, hint), Factor: 2}
		}
		wait := b.Duration()
		if hint > wait {
			wait = hint
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// RateLimitOnly retries rate-limit responses only, honouring Retry-After.
func RateLimitOnly(err error) (bool, time.Duration) {
	if !ports.IsRateLimited(err) {
		return false, 0
	}
	hint, _ := ports.RetryAfter(err)
	return true, hint
}

// Transient retries rate-limit responses and transient upstream failures.
// Malformed payloads and caller cancellations are never retried.
func Transient(err error) (bool, time.Duration) {
	if ok, hint := RateLimitOnly(err); ok {
		return true, hint
	}
	if ports.IsUnavailable(err) && !ports.IsMalformed(err) {
		return true, 0
	}
	return false, 0
}
