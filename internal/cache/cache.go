// Package cache provides a small read-through cache used for soft real-time
// state such as the kill switch. Cached values may be stale up to their TTL;
// nothing correctness-critical may depend on a cache hit.
package cache

import (
	"context"
	"time"
)

// Cache stores JSON-serializable values with a TTL.
type Cache interface {
	// Get unmarshals the cached value into dst and reports whether it was found.
	Get(ctx context.Context, key string, dst any) (bool, error)
	// Set stores the value under key for at most ttl.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Delete removes the key; missing keys are not an error.
	Delete(ctx context.Context, key string) error
}
