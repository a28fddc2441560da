package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// RetryPolicy controls how a failed fetch is retried before the error is
// surfaced. The delay before retry n (zero-based) is BaseDelay doubled n
// times, capped at MaxDelay.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Delay returns the wait before the retry with the given zero-based index.
func (r RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := r.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if r.MaxDelay > 0 && d >= r.MaxDelay {
			return r.MaxDelay
		}
	}
	if r.MaxDelay > 0 && d > r.MaxDelay {
		return r.MaxDelay
	}
	return d
}

// Backoff returns a retry policy with the given number of retries, waiting
// 1s before the first and doubling up to 30s.
func Backoff(retries int) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Policy is the per-query freshness and retention configuration.
type Policy struct {
	// StaleTime is how long a successful result is served without refetching.
	StaleTime time.Duration

	// GCTime is how long an entry with no observers is retained.
	GCTime time.Duration

	Retry RetryPolicy
}

// Validate checks that every duration is non-negative.
func (p Policy) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.StaleTime, validation.Min(time.Duration(0))),
		validation.Field(&p.GCTime, validation.Min(time.Duration(0))),
		validation.Field(&p.Retry),
	)
}

// Validate checks the retry bounds.
func (r RetryPolicy) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.MaxRetries, validation.Min(0)),
		validation.Field(&r.BaseDelay, validation.Min(time.Duration(0))),
		validation.Field(&r.MaxDelay, validation.Min(time.Duration(0))),
	)
}
