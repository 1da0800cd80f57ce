// Package cache provides TTL response caching for the proxy, plus the
// deterministic cache key derivation used to address entries.
//
// Caching is a performance optimization, never a correctness dependency:
// every implementation treats backend faults as a miss on read and a no-op
// on write, and none of them ever surfaces an error to the request path.
package cache

import (
	"context"
	"time"
)

// Cache is the TTL store contract used by the proxy.
type Cache interface {
	// Get retrieves a cached value by key. Absent, expired, and
	// backend-error all read as a miss.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores a value with the given TTL, best-effort.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	// Delete removes a cached value.
	Delete(ctx context.Context, key string)
	// Purge removes all cached values owned by this proxy.
	Purge(ctx context.Context)
}

// Noop is a permanent-miss Cache. It stands in when caching is disabled or
// the configured backend was unreachable at startup.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool)                 { return nil, false }
func (Noop) Set(context.Context, string, []byte, time.Duration)         {}
func (Noop) Delete(context.Context, string)                             {}
func (Noop) Purge(context.Context)                                      {}
