// Package counter provides fixed-window request counter stores.
//
// A counter is keyed by (subject, endpoint, window start) and only ever moves
// forward: Increment is an atomic upsert at the storage layer, never an
// application-level read-then-write, so concurrent requests for the same
// window cannot lose updates.
package counter

import (
	"context"
	"time"

	"hearth/internal/ratelimit/models"
)

// Store defines the persistence interface for rate limit counters.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the current count for the key, 0 if the counter does not exist.
	Get(ctx context.Context, key models.CounterKey) (int, error)

	// Increment atomically upserts the counter and returns the post-increment
	// count. The window bounds the counter's useful lifetime; stores may use it
	// to expire stale counters.
	Increment(ctx context.Context, key models.CounterKey, window time.Duration) (int, error)
}
