package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"

	"github.com/eugener/radagast/internal/app"
	"github.com/eugener/radagast/internal/auth"
	"github.com/eugener/radagast/internal/cache"
	"github.com/eugener/radagast/internal/config"
	"github.com/eugener/radagast/internal/provider/ollama"
	"github.com/eugener/radagast/internal/server"
	"github.com/eugener/radagast/internal/telemetry"
)

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.Info("starting radagast", "version", version, "addr", cfg.Server.Addr, "upstream", cfg.Upstream.URL())

	ctx := context.Background()

	// Tracing (optional)
	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return err
		}
		defer shutdown(context.Background())
	}

	// Upstream client with a cached DNS resolver. The proxy dials the same
	// host on every request, so re-resolving each time is pure waste.
	resolver := &dnscache.Resolver{}
	go func() {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for range t.C {
			resolver.Refresh(true)
		}
	}()

	upstream := ollama.New(ollama.Options{
		BaseURL:         cfg.Upstream.URL(),
		GenerateTimeout: cfg.Upstream.GenerateTimeout,
		HealthTimeout:   cfg.Upstream.HealthTimeout,
		Resolver:        resolver,
	})

	// Response cache: Redis when configured, in-process otherwise. A Redis
	// backend that is down at startup degrades to no caching rather than
	// blocking the proxy.
	responseCache, closeCache, err := buildCache(cfg.Cache)
	if err != nil {
		return err
	}
	defer closeCache()

	// API key auth
	apiKeyAuth := auth.New(auth.Options{
		KeyFile:         cfg.Auth.KeyFile,
		Salt:            cfg.Auth.Salt,
		AlreadySalted:   cfg.Auth.AlreadySalted,
		RefreshInterval: cfg.Auth.RefreshInterval,
	})

	// Metrics (optional)
	var (
		metrics        *telemetry.Metrics
		metricsHandler http.Handler
	)
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = telemetry.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	proxySvc := app.NewProxyService(upstream, responseCache, cfg.Cache.TTL, metrics)

	handler := server.New(server.Deps{
		Auth:           apiKeyAuth,
		Proxy:          proxySvc,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("radagast ready", "addr", cfg.Server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	slog.Info("radagast stopped")
	return nil
}

// buildCache selects the response cache backend from config. The returned
// close func is a no-op for backends without connections to release.
func buildCache(cfg config.CacheConfig) (cache.Cache, func(), error) {
	noop := func() {}

	if !cfg.Enabled {
		slog.Info("response caching disabled")
		return cache.Noop{}, noop, nil
	}

	if addr := cfg.Redis.Addr(); addr != "" {
		r, err := cache.NewRedis(cache.RedisOptions{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			slog.Warn("redis unavailable, running without response cache", "addr", addr, "error", err)
			return cache.Noop{}, noop, nil
		}
		slog.Info("response cache: redis", "addr", addr, "ttl", cfg.TTL)
		return r, func() { r.Close() }, nil
	}

	m, err := cache.NewMemory(cfg.MaxSize, cfg.TTL)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("response cache: in-process", "max_size", cfg.MaxSize, "ttl", cfg.TTL)
	return m, noop, nil
}
