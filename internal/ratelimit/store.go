package ratelimit

import (
	"context"
	"time"
)

// Store keeps fixed-window counters. Implementations must be safe for
// concurrent use and must not extend an open window on later hits.
type Store interface {
	// Increment counts one hit against key. When no window is open for key,
	// or now is past its reset time, a new window of length window starts at
	// now with a count of 1. It returns the count after the hit and the
	// window's reset time.
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (count int64, resetAt time.Time, err error)

	// Reset drops the counter for key.
	Reset(ctx context.Context, key string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}
