package testutil

import (
	"context"
	"sync"
	"time"
)

// FakeCache is a map-backed cache.Cache that records writes. TTLs are
// stored but not enforced; tests asserting expiry use a real backend.
type FakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
}

// NewFakeCache returns an empty FakeCache.
func NewFakeCache() *FakeCache {
	return &FakeCache{
		entries: make(map[string][]byte),
		ttls:    make(map[string]time.Duration),
	}
}

// Get returns the stored value, if any.
func (c *FakeCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

// Set stores the value and remembers the TTL it was stored with.
func (c *FakeCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = val
	c.ttls[key] = ttl
}

// Delete removes an entry.
func (c *FakeCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	delete(c.ttls, key)
}

// Purge clears the cache.
func (c *FakeCache) Purge(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	clear(c.ttls)
}

// TTL reports the TTL the key was last stored with.
func (c *FakeCache) TTL(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ttl, ok := c.ttls[key]
	return ttl, ok
}

// Len reports the number of stored entries.
func (c *FakeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
