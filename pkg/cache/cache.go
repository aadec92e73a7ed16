package cache

import (
	"context"
	"strconv"
	"time"
)

// Cache is a byte-oriented cache with TTL expiry and prefix invalidation.
// Values are opaque; callers serialize what they store.
type Cache interface {
	// Get returns the cached value and whether the key was present and
	// unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeleteByPrefix removes every key that starts with prefix.
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// Key builders. Invalidation for a table deletes both prefixes for its
// schema.table key, so any depth/direction variant goes with it.

// ProfileKey is the cache key for a table profile.
func ProfileKey(schemaName, tableName string) string {
	return "profile:" + schemaName + "." + tableName
}

// LineageKeyPrefix covers every cached lineage neighborhood of a table.
func LineageKeyPrefix(schemaName, tableName string) string {
	return "lineage:" + schemaName + "." + tableName + ":"
}

// LineageKey is the cache key for one lineage neighborhood query.
func LineageKey(schemaName, tableName, direction string, depth int) string {
	return LineageKeyPrefix(schemaName, tableName) + direction + ":" + strconv.Itoa(depth)
}

// SearchKey is the cache key for a search query.
func SearchKey(query, resultType, schemaName string) string {
	return "search:" + query + ":" + resultType + ":" + schemaName
}
