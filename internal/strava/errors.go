package strava

import (
	"fmt"
	"time"
)

// AuthError means the credentials were rejected or the token endpoint could
// not be reached. It is fatal for the current sync and not retried.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("strava auth failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// RateLimitError means the upstream request budget is exhausted, either as
// reported by upstream or as tracked locally. Fetching stops at once; the
// caller should wait for the next window.
type RateLimitError struct {
	Page       int
	Limit      Usage // X-RateLimit-Limit, zero when unknown
	Usage      Usage // X-RateLimit-Usage, zero when unknown
	RetryAfter time.Duration
	Local      bool // rejected by the local budget before sending
}

// Usage is a pair of counters for the short (15 minute) and daily windows.
type Usage struct {
	Short int
	Daily int
}

func (e *RateLimitError) Error() string {
	source := "upstream"
	if e.Local {
		source = "local budget"
	}
	msg := fmt.Sprintf("strava rate limit reached on page %d (%s)", e.Page, source)
	if e.Limit != (Usage{}) {
		msg += fmt.Sprintf(": usage %d/%d short, %d/%d daily",
			e.Usage.Short, e.Limit.Short, e.Usage.Daily, e.Limit.Daily)
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(", retry after %s", e.RetryAfter.Round(time.Second))
	}
	return msg
}

// NetworkError is a connectivity failure or an upstream server error. It is
// transient; the caller may retry the whole sync.
type NetworkError struct {
	Page   int
	Status int // 0 for transport failures
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("strava request for page %d failed with status %d: %v", e.Page, e.Status, e.Err)
	}
	return fmt.Sprintf("strava request for page %d failed: %v", e.Page, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
