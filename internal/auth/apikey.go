package auth

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	gateway "github.com/eugener/radagast/internal"
)

// apikeyHeader carries the presented key on inbound requests.
const apikeyHeader = "apikey"

// minRefreshInterval is the floor for the key refresh interval. A near-zero
// interval would otherwise re-read the key file on every request.
const minRefreshInterval = 2 * time.Second

// APIKeyAuth answers "is this presented key currently trusted?" while
// keeping the trust set loosely synchronized with the key file.
//
// The set is refreshed lazily inside Verify rather than by a background
// task: a newly provisioned key becomes valid on its first use once the
// refresh interval has elapsed. The set pointer is swapped atomically so
// concurrent verifies never observe a partially built set; the
// read-check-then-refresh sequence is deliberately not exclusive, an extra
// refresh under contention is harmless.
type APIKeyAuth struct {
	store        *keyStore
	refreshEvery time.Duration
	keys         atomic.Pointer[keySet]
	lastRefresh  atomic.Int64 // unix nanos of last successful load
	fallback     atomic.Bool  // serving the generated host-derived key
}

// Options configures an APIKeyAuth.
type Options struct {
	KeyFile         string
	Salt            string
	AlreadySalted   bool
	RefreshInterval time.Duration
}

// New builds an APIKeyAuth and performs the initial key load. When the key
// file yields nothing, a single deterministic fallback key derived from the
// hostname is trusted instead and logged for the operator. That path is for
// ephemeral dev deployments only: the key is predictable by anyone who knows
// the hostname.
func New(opts Options) *APIKeyAuth {
	a := &APIKeyAuth{
		store: &keyStore{
			path:          opts.KeyFile,
			salt:          opts.Salt,
			alreadySalted: opts.AlreadySalted,
		},
		refreshEvery: max(opts.RefreshInterval, minRefreshInterval),
	}

	set, err := a.store.load()
	if err != nil {
		slog.Warn("api key file not readable", "path", opts.KeyFile, "error", err)
	}
	if len(set) == 0 {
		raw := fallbackKey()
		set = keySet{SaltedHash(raw, opts.Salt): {}}
		a.fallback.Store(true)
		slog.Warn("INSECURE FALLBACK: no API keys loaded, generated a host-derived key -- do not use in production",
			"api_key", raw)
	}
	a.keys.Store(&set)
	a.lastRefresh.Store(time.Now().UnixNano())
	return a
}

// RefreshInterval returns the effective (clamped) refresh interval.
func (a *APIKeyAuth) RefreshInterval() time.Duration { return a.refreshEvery }

// UsingFallback reports whether the trust set is the generated fallback key.
func (a *APIKeyAuth) UsingFallback() bool { return a.fallback.Load() }

// Authenticate reads the apikey header and verifies it against the trusted
// set, implementing gateway.Authenticator.
func (a *APIKeyAuth) Authenticate(_ context.Context, r *http.Request) (*gateway.Identity, error) {
	raw := r.Header.Get(apikeyHeader)
	if raw == "" {
		return nil, gateway.ErrMissingKey
	}
	hash, ok := a.Verify(raw)
	if !ok {
		return nil, gateway.ErrInvalidKey
	}
	return &gateway.Identity{Subject: hash[:8], Fallback: a.fallback.Load()}, nil
}

// Verify reports whether raw is currently trusted, returning its salted
// hash for logging. When the refresh interval has elapsed, or the hash is
// not in the current set, the key file is re-read first so recently added
// keys work immediately.
func (a *APIKeyAuth) Verify(raw string) (string, bool) {
	hash := SaltedHash(raw, a.store.salt)

	set := *a.keys.Load()
	stale := time.Since(time.Unix(0, a.lastRefresh.Load())) > a.refreshEvery
	if stale || !set.contains(hash) {
		a.refresh()
		set = *a.keys.Load()
	}
	return hash, set.contains(hash)
}

// refresh re-reads the key file and swaps the live set. Failures are
// non-fatal: an unreadable or empty file never replaces a non-empty set,
// so verification fails open to the last known good keys.
func (a *APIKeyAuth) refresh() {
	next, err := a.store.load()
	if err != nil {
		slog.Warn("key refresh failed, keeping previous set", "error", err)
		return
	}
	if len(next) == 0 {
		slog.Warn("key file is empty, keeping previous set", "path", a.store.path)
		return
	}
	a.keys.Store(&next)
	a.lastRefresh.Store(time.Now().UnixNano())
	a.fallback.Store(false)
}

// fallbackHexLen is the length of the generated fallback key.
const fallbackHexLen = 32

// fallbackKey derives a deterministic key from the hostname. Deliberately
// not cryptographically secure: the same host always produces the same key
// so a dev deployment stays reachable across restarts.
func fallbackKey() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return SaltedHash(host, "")[:fallbackHexLen]
}
