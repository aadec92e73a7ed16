package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader is a read-through wrapper around a Cache. Concurrent misses for
// the same key collapse into a single computation; the losers share the
// winner's result.
type Loader struct {
	cache Cache
	group singleflight.Group
}

// NewLoader creates a Loader over the given cache.
func NewLoader(cache Cache) *Loader {
	return &Loader{cache: cache}
}

// GetOrLoad returns the cached value for key, computing and storing it via
// fn on a miss. A failed computation is not cached.
func (l *Loader) GetOrLoad(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	if value, ok, err := l.cache.Get(ctx, key); err == nil && ok {
		return value, nil
	}

	result, err, _ := l.group.Do(key, func() (any, error) {
		// Re-check under the flight: another caller may have populated
		// the key between our miss and winning the flight.
		if value, ok, err := l.cache.Get(ctx, key); err == nil && ok {
			return value, nil
		}
		value, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if err := l.cache.Set(ctx, key, value, ttl); err != nil {
			// A write failure degrades to recomputation next time.
			return value, nil
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Invalidate removes every cached entry for a table, both its profile and
// all lineage neighborhoods rooted at it.
func (l *Loader) Invalidate(ctx context.Context, schemaName, tableName string) error {
	if err := l.cache.Delete(ctx, ProfileKey(schemaName, tableName)); err != nil {
		return err
	}
	return l.cache.DeleteByPrefix(ctx, LineageKeyPrefix(schemaName, tableName))
}
