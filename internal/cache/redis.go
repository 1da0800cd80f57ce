package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// opTimeout bounds every Redis round-trip so a slow backend can never
// add more than this to request latency.
const opTimeout = 500 * time.Millisecond

// RedisOptions configures a Redis-backed cache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// Redis is a Cache backed by a Redis TTL store. Entries are owned by the
// backend and evicted by its own TTL mechanism; every backend fault reads
// as a miss or a dropped write, logged but never propagated.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to the backend and verifies it with a ping. A failed
// ping is returned to the caller, who typically degrades to a Noop cache
// for the process lifetime.
func NewRedis(opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Redis{client: client}, nil
}

// Get retrieves a cached body. Backend errors are logged and read as a miss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		slog.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	return val, true
}

// Set stores a body with the given TTL. Backend errors are logged and swallowed.
func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.client.Set(ctx, key, val, ttl).Err(); err != nil {
		slog.Warn("cache set failed", "key", key, "error", err)
	}
}

// Delete removes a single entry, best-effort.
func (r *Redis) Delete(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.client.Del(ctx, key).Err(); err != nil {
		slog.Warn("cache delete failed", "key", key, "error", err)
	}
}

// Purge removes all entries under the proxy's namespace. Other tenants of
// the backend are left alone, which is why this scans instead of FLUSHDB.
func (r *Redis) Purge(ctx context.Context) {
	iter := r.client.Scan(ctx, 0, KeyNamespace+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			slog.Warn("cache purge delete failed", "key", iter.Val(), "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		slog.Warn("cache purge scan failed", "error", err)
	}
}

// Close releases the client's connections.
func (r *Redis) Close() error {
	return r.client.Close()
}
