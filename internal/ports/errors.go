package ports

import (
	"errors"
	"fmt"
	"time"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Upstream (exchange) errors
	ErrRateLimited         = errors.New("API rate limit exceeded")
	ErrUpstreamUnavailable = errors.New("upstream API is unavailable")
	ErrConnectionFailed    = errors.New("failed to connect to the exchange")
	ErrMalformedData       = errors.New("malformed upstream payload")

	// Pipeline errors
	ErrInsufficientHistory = errors.New("not enough history for indicator")
	ErrEmptySnapshot       = errors.New("pipeline produced no records")
)

// RateLimitError is returned when the upstream answered with a rate-limit
// response. It matches ErrRateLimited with errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration // Zero when the upstream did not advertise one
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %s): %v", ErrRateLimited, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%v: %v", ErrRateLimited, e.Err)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err stems from an upstream rate-limit response.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsUnavailable reports whether err is a transient upstream failure
// (network, timeout, 5xx).
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrTimeout)
}

// RetryAfter extracts the upstream retry-after hint, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter, true
	}
	return 0, false
}

// IsMalformed reports whether err was caused by an unparseable or out-of-range payload.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedData)
}
