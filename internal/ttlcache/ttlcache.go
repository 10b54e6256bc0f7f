// Package ttlcache wraps a size-bounded, time-expiring cache used by the
// channel manager's recent-dial guard, which needs "seen in the last N
// seconds" semantics, not an LRU proper.
package ttlcache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a fixed-capacity, TTL-expiring set/map.
type Cache[K comparable, V any] struct {
	inner *lru.LRU[K, V]
}

// New creates a Cache holding up to size entries, each expiring ttl after
// insertion.
func New[K comparable, V any](size int, ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{inner: lru.NewLRU[K, V](size, nil, ttl)}
}

// Add records key->value, resetting its TTL.
func (c *Cache[K, V]) Add(key K, value V) {
	c.inner.Add(key, value)
}

// Contains reports whether key is present and unexpired.
func (c *Cache[K, V]) Contains(key K) bool {
	return c.inner.Contains(key)
}

// Get returns the value for key, if present and unexpired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.inner.Get(key)
}

// Remove evicts key.
func (c *Cache[K, V]) Remove(key K) {
	c.inner.Remove(key)
}

// Len returns the number of unexpired entries.
func (c *Cache[K, V]) Len() int {
	return c.inner.Len()
}
