package cache

import (
	"sync"
	"time"
)

// TTLValue holds a single value that expires after a fixed TTL.
// A TTL of 0 effectively disables caching.
type TTLValue[T any] struct {
	mu       sync.RWMutex
	value    T
	storedAt time.Time
	ttl      time.Duration
	now      func() time.Time
}

// NewTTLValue creates an empty TTLValue
func NewTTLValue[T any](ttl time.Duration) *TTLValue[T] {
	return &TTLValue[T]{ttl: ttl, now: time.Now}
}

// Get returns the cached value and whether it is still within TTL
func (c *TTLValue[T]) Get() (value T, valid bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	valid = !c.storedAt.IsZero() && c.now().Sub(c.storedAt) < c.ttl
	return c.value, valid
}

// Set replaces the cached value
func (c *TTLValue[T]) Set(value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	c.storedAt = c.now()
}

// Invalidate forces the next Get to report a miss
func (c *TTLValue[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storedAt = time.Time{}
}

// TTL returns the time-to-live duration
func (c *TTLValue[T]) TTL() time.Duration {
	return c.ttl
}

// StoredAt returns when the current value was set, or the zero time
func (c *TTLValue[T]) StoredAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.storedAt
}
