// Package state holds last-known snapshots of native state for synchronous getters.
package state

import "sync"

// Cache is a single last-known value. It starts unknown, is overwritten on
// every Set and is never cleared. Concurrent writers race; the last Set wins.
type Cache[T any] struct {
	mu     sync.RWMutex
	value  T
	known  bool
	writes uint64
}

// Get returns the cached value and whether it has ever been populated.
func (c *Cache[T]) Get() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.known
}

// Set overwrites the cached value.
func (c *Cache[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	c.known = true
	c.writes++
	c.mu.Unlock()
}

// Or returns the cached value, or def while unknown.
func (c *Cache[T]) Or(def T) T {
	if v, ok := c.Get(); ok {
		return v
	}
	return def
}

// Seeded reports how many times the cache has been written.
func (c *Cache[T]) Seeded() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.writes
}
