// Package app contains the request orchestration for the Radagast proxy.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	gateway "github.com/eugener/radagast/internal"
	"github.com/eugener/radagast/internal/cache"
	"github.com/eugener/radagast/internal/telemetry"
)

var tracer = telemetry.Tracer("app")

// Upstream is the inference service contract the proxy forwards to.
type Upstream interface {
	Generate(ctx context.Context, payload []byte) (json.RawMessage, error)
	ListModels(ctx context.Context) ([]string, error)
	HealthCheck(ctx context.Context) error
}

// ProxyService orchestrates one generation call end to end: cache lookup,
// upstream forward on a miss, best-effort cache population. Authentication
// happens upstream of this service, in the transport middleware, so no
// cache or network I/O can precede it.
type ProxyService struct {
	upstream Upstream
	cache    cache.Cache
	ttl      time.Duration
	metrics  *telemetry.Metrics // nil = no metrics
	group    singleflight.Group
}

// NewProxyService wires a ProxyService. metrics may be nil.
func NewProxyService(upstream Upstream, c cache.Cache, ttl time.Duration, metrics *telemetry.Metrics) *ProxyService {
	return &ProxyService{
		upstream: upstream,
		cache:    c,
		ttl:      ttl,
		metrics:  metrics,
	}
}

// CallModel serves a generation request. Cached responses are returned
// verbatim without touching the upstream. On a miss, concurrent requests
// with the same derived key are coalesced into a single upstream call.
func (s *ProxyService) CallModel(ctx context.Context, payload []byte) (json.RawMessage, error) {
	key := cache.Key(payload)

	if body, ok := s.cache.Get(ctx, key); ok {
		if s.metrics != nil {
			s.metrics.CacheHits.Inc()
		}
		slog.LogAttrs(ctx, slog.LevelDebug, "cache hit",
			slog.String("key", key),
			slog.String("request_id", gateway.RequestIDFromContext(ctx)),
		)
		return body, nil
	}
	if s.metrics != nil {
		s.metrics.CacheMisses.Inc()
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.forward(ctx, key, payload)
	})
	if err != nil {
		return nil, err
	}
	if shared && s.metrics != nil {
		s.metrics.CoalescedCalls.Inc()
	}
	return v.(json.RawMessage), nil
}

// forward performs the upstream call and populates the cache. Population is
// asynchronous and detached from the request context so a slow cache write
// never delays the response.
func (s *ProxyService) forward(ctx context.Context, key string, payload []byte) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "upstream.generate")
	span.SetAttributes(attribute.String("cache.key", key))
	defer span.End()

	start := time.Now()
	body, err := s.upstream.Generate(ctx, payload)
	if s.metrics != nil {
		s.metrics.UpstreamDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.UpstreamErrors.Inc()
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", gateway.ErrUpstream, err)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		s.cache.Set(ctx, key, body, s.ttl)
	}()

	return body, nil
}

// ListModels returns the model names the upstream advertises.
func (s *ProxyService) ListModels(ctx context.Context) ([]string, error) {
	names, err := s.upstream.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrUpstream, err)
	}
	return names, nil
}

// HealthCheck probes the upstream's listing endpoint. It deliberately
// bypasses the cache and the authenticator.
func (s *ProxyService) HealthCheck(ctx context.Context) error {
	return s.upstream.HealthCheck(ctx)
}
