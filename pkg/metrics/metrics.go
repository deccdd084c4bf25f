// Package metrics defines the Prometheus metric collectors used across the
// navigator and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the navigator. Collectors are
// registered on a private registry so several instances can coexist.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	HTTPResponseBytes    *prometheus.HistogramVec
	RateLimitedTotal     prometheus.Counter

	EnhanceRequestsTotal *prometheus.CounterVec
	EnhanceLatency       prometheus.Histogram
	SynonymsAddedTotal   prometheus.Counter
	CorrectionsTotal     prometheus.Counter
	SpecialTermsTotal    *prometheus.CounterVec
	TopCategoryTotal     *prometheus.CounterVec

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter

	UpstreamRequestsTotal *prometheus.CounterVec
	CircuitBreakerState   *prometheus.GaugeVec
	AnalyticsEventsTotal  *prometheus.CounterVec
	KafkaMessagesTotal    *prometheus.CounterVec
	ComponentHealth       *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		HTTPResponseBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response body size in bytes.",
				Buckets: prometheus.ExponentialBuckets(64, 4, 8),
			},
			[]string{"path"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "http_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter.",
			},
		),
		EnhanceRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enhance_requests_total",
				Help: "Total query enhancements by outcome (changed, unchanged, empty).",
			},
			[]string{"outcome"},
		),
		EnhanceLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "enhance_latency_seconds",
				Help:    "Query enhancement latency in seconds.",
				Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
			},
		),
		SynonymsAddedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "enhance_synonyms_added_total",
				Help: "Total canonical synonym terms appended to queries.",
			},
		),
		CorrectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "enhance_corrections_total",
				Help: "Total fuzzy spelling corrections applied.",
			},
		),
		SpecialTermsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enhance_special_terms_total",
				Help: "Total protected notation terms by kind.",
			},
			[]string{"kind"},
		),
		TopCategoryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enhance_top_category_total",
				Help: "Number of queries whose highest-weighted category was the label.",
			},
			[]string{"category"},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"categories"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of response cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of response cache misses.",
			},
		),
		UpstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upstream_requests_total",
				Help: "Total rules API requests by category and status.",
			},
			[]string{"category", "status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		AnalyticsEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_events_total",
				Help: "Analytics events by status (queued, dropped, published, failed).",
			},
			[]string{"status"},
		),
		KafkaMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_total",
				Help: "Kafka messages by topic and outcome (published, publish_failed, processed, poisoned, failed).",
			},
			[]string{"topic", "outcome"},
		),
		ComponentHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "component_health",
				Help: "Last health check result per component (1=up, 0.5=degraded, 0=down).",
			},
			[]string{"component"},
		),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.HTTPResponseBytes,
		m.RateLimitedTotal,
		m.EnhanceRequestsTotal,
		m.EnhanceLatency,
		m.SynonymsAddedTotal,
		m.CorrectionsTotal,
		m.SpecialTermsTotal,
		m.TopCategoryTotal,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.UpstreamRequestsTotal,
		m.CircuitBreakerState,
		m.AnalyticsEventsTotal,
		m.KafkaMessagesTotal,
		m.ComponentHealth,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for m's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
