package cache

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// LoadFunc fetches a subject's data from the backing dependency on a miss.
type LoadFunc func(ctx context.Context) ([]byte, error)

// Loader is the read-through front of a Store. Concurrent misses for the
// same key are collapsed into a single upstream load; only successful loads
// are cached, so failures are retried by the next caller.
type Loader struct {
	store  Store
	group  singleflight.Group
	logger *slog.Logger
}

func NewLoader(store Store, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{store: store, logger: logger}
}

// GetOrLoad returns the cached value for key, or invokes load once across
// all concurrent callers and caches the result for ttl. The second return
// reports whether the value came from cache.
func (l *Loader) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load LoadFunc) ([]byte, bool, error) {
	if value, ok, err := l.lookup(ctx, key); err == nil && ok {
		return value, true, nil
	}

	result, err, _ := l.group.Do(key, func() (any, error) {
		// A concurrent caller may have populated the key while this one
		// waited on the flight group.
		if value, ok, err := l.lookup(ctx, key); err == nil && ok {
			return value, nil
		}

		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := l.store.Set(ctx, key, value, ttl); err != nil {
			l.logger.Warn("cache write failed", "key", key, "error", err)
		}
		return value, nil
	})
	if err != nil {
		return nil, false, err
	}
	return result.([]byte), false, nil
}

// Invalidate drops a key so the next read goes upstream.
func (l *Loader) Invalidate(ctx context.Context, key string) error {
	return l.store.Invalidate(ctx, key)
}

// lookup reads through to the store, degrading a backend failure into a
// miss so an unavailable cache never fails a verification.
func (l *Loader) lookup(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok, err := l.store.Get(ctx, key)
	if err != nil {
		l.logger.Warn("cache read failed", "key", key, "error", err)
		return nil, false, nil
	}
	return value, ok, nil
}
