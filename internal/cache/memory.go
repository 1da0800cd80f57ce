package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"
)

// entry wraps a cached body with its expiration deadline. Per-entry
// deadlines are checked on read because otter's expiry policy is fixed at
// construction while Set accepts an arbitrary TTL.
type entry struct {
	body      []byte
	expiresAt time.Time
}

// Memory is an in-process W-TinyLFU cache backed by otter. It serves
// deployments without a Redis backend; entries do not survive restarts.
type Memory struct {
	cache *otter.Cache[string, entry]
}

// NewMemory creates an in-process cache bounded to maxSize entries, with
// defaultTTL as the eviction horizon.
func NewMemory(maxSize int, defaultTTL time.Duration) (*Memory, error) {
	c, err := otter.New[string, entry](&otter.Options[string, entry]{
		MaximumSize:      maxSize,
		ExpiryCalculator: otter.ExpiryWriting[string, entry](defaultTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	return &Memory{cache: c}, nil
}

// Get returns the cached body if present and unexpired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	e, ok := m.cache.GetIfPresent(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		m.cache.Invalidate(key)
		return nil, false
	}
	return e.body, true
}

// Set stores a body with a per-entry TTL.
func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	m.cache.Set(key, entry{body: val, expiresAt: time.Now().Add(ttl)})
}

// Delete removes a single entry.
func (m *Memory) Delete(_ context.Context, key string) {
	m.cache.Invalidate(key)
}

// Purge removes all entries.
func (m *Memory) Purge(_ context.Context) {
	m.cache.InvalidateAll()
}
