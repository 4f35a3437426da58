// Package metrics holds the Prometheus collectors for the flight search
// subsystem.
//
// Collectors are created per Metrics value and registered on the registerer
// passed to New, so every test and every process gets its own counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups all collectors. A nil *Metrics is not valid; use New.
type Metrics struct {
	// Registry is the registry collectors were registered on. It is nil when
	// New was given an external Registerer.
	Registry *prometheus.Registry

	// API metrics (pkg/client)
	APICalls        prometheus.Counter
	APIFailures     *prometheus.CounterVec
	APIAttempts     prometheus.Counter
	RetryBackoff    *prometheus.HistogramVec
	RequestDuration prometheus.Histogram

	// Cache metrics (pkg/cache)
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	CacheErrors  *prometheus.CounterVec
	PrunedSearch prometheus.Counter

	// Rate limit metrics (pkg/ratelimit)
	RateLimitBlocks prometheus.Counter

	// Storage metrics (pkg/storage)
	StorageFailures prometheus.Counter
	StorageSkips    *prometheus.CounterVec

	// Inbound merge metrics (pkg/inbound)
	InboundFallbacks *prometheus.CounterVec
}

// New creates all collectors on reg. A nil reg gets a fresh private registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{}
	if reg == nil {
		m.Registry = prometheus.NewRegistry()
		reg = m.Registry
	}
	f := promauto.With(reg)

	m.APICalls = f.NewCounter(prometheus.CounterOpts{
		Name: "flight_api_calls_total",
		Help: "Total number of successful search API calls",
	})
	m.APIFailures = f.NewCounterVec(prometheus.CounterOpts{
		Name: "flight_api_failures_total",
		Help: "Total number of terminal search API failures by error class",
	}, []string{"error_class"})
	m.APIAttempts = f.NewCounter(prometheus.CounterOpts{
		Name: "flight_api_attempts_total",
		Help: "Total number of HTTP attempts made against the search API",
	})
	m.RetryBackoff = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flight_retry_backoff_seconds",
		Help:    "Backoff duration before a retry by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})
	m.RequestDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "flight_request_duration_seconds",
		Help:    "Duration of a single search API attempt",
		Buckets: prometheus.DefBuckets,
	})

	m.CacheHits = f.NewCounter(prometheus.CounterOpts{
		Name: "flight_cache_hits_total",
		Help: "Total number of cache lookups served from structured storage",
	})
	m.CacheMisses = f.NewCounter(prometheus.CounterOpts{
		Name: "flight_cache_misses_total",
		Help: "Total number of cache lookups that fell through to the API",
	})
	m.CacheErrors = f.NewCounterVec(prometheus.CounterOpts{
		Name: "flight_cache_errors_total",
		Help: "Total number of cache operation errors",
	}, []string{"operation"}) // "lookup", "prune"
	m.PrunedSearch = f.NewCounter(prometheus.CounterOpts{
		Name: "flight_cache_pruned_searches_total",
		Help: "Total number of expired searches removed by pruning",
	})

	m.RateLimitBlocks = f.NewCounter(prometheus.CounterOpts{
		Name: "flight_rate_limit_blocks_total",
		Help: "Total number of API calls rejected by the rate limiter",
	})

	m.StorageFailures = f.NewCounter(prometheus.CounterOpts{
		Name: "flight_structured_storage_failures_total",
		Help: "Total number of failed structured storage transactions",
	})
	m.StorageSkips = f.NewCounterVec(prometheus.CounterOpts{
		Name: "flight_structured_storage_skips_total",
		Help: "Total number of searches, segments or layovers skipped for missing reference data",
	}, []string{"kind"}) // "search", "segment", "layover"

	m.InboundFallbacks = f.NewCounterVec(prometheus.CounterOpts{
		Name: "flight_inbound_fallbacks_total",
		Help: "Inbound merge outcomes for round-trip searches",
	}, []string{"outcome"})

	return m
}

// Metrics Documentation
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(flight_cache_hits_total[5m])) /
//   (sum(rate(flight_cache_hits_total[5m])) + sum(rate(flight_cache_misses_total[5m])))
//
//   # Retries per successful call
//   rate(flight_api_attempts_total[5m]) / rate(flight_api_calls_total[5m])
//
//   # Structured storage failure rate
//   rate(flight_structured_storage_failures_total[1h])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(flight_request_duration_seconds_bucket[5m]))
