package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eugener/radagast/internal/app"
	"github.com/eugener/radagast/internal/auth"
	"github.com/eugener/radagast/internal/cache"
	"github.com/eugener/radagast/internal/telemetry"
	"github.com/eugener/radagast/internal/testutil"
)

const trustedKey = "correct"

type fixture struct {
	handler  http.Handler
	upstream *testutil.FakeUpstream
	cache    *testutil.FakeCache
}

// newFixture wires a handler with real authentication (key file holding
// trustedKey) and fake upstream and cache.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	keyFile := filepath.Join(t.TempDir(), "api_keys.txt")
	if err := os.WriteFile(keyFile, []byte(trustedKey+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	up := &testutil.FakeUpstream{}
	fc := testutil.NewFakeCache()
	h := New(Deps{
		Auth: auth.New(auth.Options{
			KeyFile:         keyFile,
			Salt:            "test-salt",
			RefreshInterval: 10 * time.Second,
		}),
		Proxy: app.NewProxyService(up, fc, time.Hour, nil),
	})
	return &fixture{handler: h, upstream: up, cache: fc}
}

func (f *fixture) callModel(key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/call_model", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("apikey", key)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) waitForCache(t *testing.T, key string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := f.cache.Get(context.Background(), key); ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("cache never populated for %s", key)
}

func TestCallModelMissingHeader(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.callModel("", `{"model":"llama2","prompt":"Hello"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Missing APIKEY header") {
		t.Errorf("body = %s, want Missing APIKEY header detail", rec.Body.String())
	}
	if f.upstream.GenerateCalls() != 0 {
		t.Error("unauthenticated request must not reach the upstream")
	}
}

func TestCallModelWrongKey(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.callModel("wrong", `{"model":"llama2","prompt":"Hello"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid API key") {
		t.Errorf("body = %s, want Invalid API key detail", rec.Body.String())
	}
}

func TestCallModelMissThenCachedHit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	payload := `{"model":"llama2","prompt":"Hello"}`

	rec := f.callModel(trustedKey, payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != `{"response":"Hi"}` {
		t.Errorf("body = %s, want upstream body verbatim", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	f.waitForCache(t, cache.Key([]byte(payload)))

	// Same payload within the TTL: identical body, no second upstream call.
	rec = f.callModel(trustedKey, payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != `{"response":"Hi"}` {
		t.Errorf("cached body = %s", rec.Body.String())
	}
	if got := f.upstream.GenerateCalls(); got != 1 {
		t.Errorf("generate calls = %d, want 1", got)
	}
}

func TestCallModelUpstreamUnavailable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.upstream.GenerateFn = func(context.Context, []byte) (json.RawMessage, error) {
		return nil, errors.New("dial tcp: connection refused")
	}

	rec := f.callModel(trustedKey, `{"model":"llama2","prompt":"Hello"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Error communicating with ollama service") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestCallModelInvalidJSON(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.callModel(trustedKey, `{"model":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if f.upstream.GenerateCalls() != 0 {
		t.Error("malformed payload must not reach the upstream")
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil) // no apikey
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" || body["ollama"] != "connected" {
		t.Errorf("body = %v", body)
	}
}

func TestHealthUpstreamDown(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.upstream.HealthFn = func(context.Context) error {
		return errors.New("connection refused")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Ollama service unavailable") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	// Liveness must not depend on the upstream.
	f.upstream.HealthFn = func(context.Context) error {
		return errors.New("down")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestListModels(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated /models: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set("apikey", trustedKey)
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "llama2:latest") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("missing generated X-Request-Id")
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "given-id")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "given-id" {
		t.Errorf("X-Request-Id = %q, want caller's id echoed", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)
	up := &testutil.FakeUpstream{}
	h := New(Deps{
		Auth:           testutil.FakeAuth{},
		Proxy:          app.NewProxyService(up, cache.Noop{}, time.Hour, m),
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	req := httptest.NewRequest(http.MethodPost, "/call_model", strings.NewReader(`{"model":"llama2"}`))
	req.Header.Set("apikey", "anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "radagast_requests_total") {
		t.Error("metrics output missing radagast_requests_total")
	}
	if !strings.Contains(rec.Body.String(), "radagast_cache_misses_total") {
		t.Error("metrics output missing radagast_cache_misses_total")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	up := &testutil.FakeUpstream{
		GenerateFn: func(context.Context, []byte) (json.RawMessage, error) {
			panic("boom")
		},
	}
	h := New(Deps{
		Auth:  testutil.FakeAuth{},
		Proxy: app.NewProxyService(up, cache.Noop{}, time.Hour, nil),
	})

	req := httptest.NewRequest(http.MethodPost, "/call_model", strings.NewReader(`{"model":"llama2"}`))
	req.Header.Set("apikey", "anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Internal server error") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
