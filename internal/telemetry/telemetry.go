// Package telemetry provides observability with Prometheus metrics and
// structured logging.
package telemetry

import (
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tabletalk/internal/config"
)

// Metrics holds all Prometheus metrics for tabletalk.
type Metrics struct {
	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration prometheus.Histogram
	QueueDepth    prometheus.Gauge

	// Validation metrics
	ValidationRejects *prometheus.CounterVec

	// Cache metrics
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	CacheEntries prometheus.Gauge

	// Provider metrics
	ProviderAttempts    *prometheus.CounterVec
	ProviderLatency     *prometheus.HistogramVec
	FallbackInvocations prometheus.Counter
	PipelineExhausted   prometheus.Counter
}

// NewMetrics creates and registers all metrics.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		QueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabletalk_queries_total",
				Help: "Total number of processed queries",
			},
			[]string{"status"}, // "success", "cached", "invalid", "failed"
		),

		QueryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tabletalk_query_duration_seconds",
				Help:    "End-to-end query processing duration in seconds",
				Buckets: []float64{0.005, 0.05, 0.25, 1, 2.5, 5, 10, 30, 60},
			},
		),

		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tabletalk_queue_depth",
				Help: "Number of queries waiting for a worker",
			},
		),

		ValidationRejects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabletalk_validation_rejects_total",
				Help: "Queries rejected by the validator",
			},
			[]string{"reason"},
		),

		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tabletalk_cache_hits_total",
				Help: "Response cache hits",
			},
		),

		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tabletalk_cache_misses_total",
				Help: "Response cache misses",
			},
		),

		CacheEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tabletalk_cache_entries",
				Help: "Current number of cached responses",
			},
		),

		ProviderAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabletalk_provider_attempts_total",
				Help: "Generation attempts per provider",
			},
			[]string{"provider", "outcome"}, // outcome: "success", "failure"
		),

		ProviderLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tabletalk_provider_latency_seconds",
				Help:    "Provider generation latency in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider"},
		),

		FallbackInvocations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tabletalk_fallback_invocations_total",
				Help: "Dispatches that consulted the fallback chain",
			},
		),

		PipelineExhausted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tabletalk_pipeline_exhausted_total",
				Help: "Dispatches where every configured provider failed",
			},
		),
	}
}

// Init configures structured logging from config and returns the metrics
// set plus a shutdown function.
func Init(cfg *config.Config) (*Metrics, func(), error) {
	level := parseLevel(cfg.Telemetry.LogLevel)

	var handler slog.Handler
	if cfg.Telemetry.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))

	var metrics *Metrics
	if cfg.Telemetry.Enabled {
		metrics = NewMetrics(nil)
	}

	shutdown := func() {}
	return metrics, shutdown, nil
}

// Handler returns the HTTP handler that serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
