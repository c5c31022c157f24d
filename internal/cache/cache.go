// Package cache provides the read-through cache in front of external
// registries. Entries are keyed by (dependency, subject) and carry a TTL
// chosen by data sensitivity; expired entries are never served.
package cache

import (
	"context"
	"time"
)

// Store is a byte-oriented cache backend. A miss is (nil, false, nil);
// backends reserve the error return for infrastructure failures.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Key builds the canonical cache key for a dependency's view of a subject.
func Key(dependency, subject string) string {
	return "veristry:" + dependency + ":" + subject
}
