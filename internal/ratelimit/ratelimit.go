// Package ratelimit implements fixed-window request limiting keyed by an
// arbitrary caller identity.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Result describes the state of a key's window after a request was counted.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns whole seconds until the window resets, never less than one.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(r.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter counts one request for key and reports whether it is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

func remaining(limit, count int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}
