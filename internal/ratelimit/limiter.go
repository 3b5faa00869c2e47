// Package ratelimit enforces a per-credential request budget.
package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Window is the accounting period of every limiter in this package.
const Window = time.Minute

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window resets, at least 1.
func (d Decision) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(d.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter counts one request for key against a budget of limit requests per
// Window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (Decision, error)
}

// SetHeaders writes the X-RateLimit-* headers, plus Retry-After when the
// request was refused.
func SetHeaders(h http.Header, d Decision, now time.Time) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	if !d.Allowed {
		h.Set("Retry-After", strconv.Itoa(d.RetryAfter(now)))
	}
}
