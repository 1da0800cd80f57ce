// Package telemetry provides observability primitives for the Radagast proxy.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the proxy.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveRequests   prometheus.Gauge
	UpstreamDuration prometheus.Histogram
	UpstreamErrors   prometheus.Counter
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CoalescedCalls   prometheus.Counter
	AuthFailures     *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "radagast",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "radagast",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "radagast",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:                       "radagast",
			Name:                            "upstream_duration_seconds",
			Help:                            "Ollama generate call duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}),

		UpstreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radagast",
			Name:      "upstream_errors_total",
			Help:      "Total failed Ollama calls.",
		}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radagast",
			Name:      "cache_hits_total",
			Help:      "Total response cache hits.",
		}),

		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radagast",
			Name:      "cache_misses_total",
			Help:      "Total response cache misses.",
		}),

		CoalescedCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radagast",
			Name:      "coalesced_calls_total",
			Help:      "Total generate calls served by an in-flight duplicate.",
		}),

		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "radagast",
			Name:      "auth_failures_total",
			Help:      "Total rejected requests by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.UpstreamDuration,
		m.UpstreamErrors,
		m.CacheHits,
		m.CacheMisses,
		m.CoalescedCalls,
		m.AuthFailures,
	)

	return m
}
