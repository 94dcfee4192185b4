package cache

import (
	"sync"
	"time"

	"backoffice-service/service/utils"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache in-memory cache whose entries expire after a fixed ttl, measured on an injected clock
type TTLCache[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   utils.Clock
	entries map[K]entry[V]
}

// NewTTLCache nil clock means wall clock
func NewTTLCache[K comparable, V any](ttl time.Duration, clock utils.Clock) *TTLCache[K, V] {
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &TTLCache[K, V]{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[K]entry[V]),
	}
}

// Get returns the value of key while it has not expired
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for the cache ttl
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.clock.Now().Add(c.ttl)}
}

// Invalidate drops key
func (c *TTLCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge drops every entry
func (c *TTLCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
}

// Len number of stored entries, expired ones included until they are read
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
