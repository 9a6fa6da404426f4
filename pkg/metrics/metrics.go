// Package metrics defines the Prometheus metric collectors used across the
// merge layer and the search service, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	LexiconLookupsTotal  *prometheus.CounterVec
	TermsAssignedTotal   prometheus.Counter
	PostingsIterated     prometheus.Counter
	ShardDocCount        *prometheus.GaugeVec
	ActiveShards         prometheus.Gauge
	MergeReloadsTotal    *prometheus.CounterVec
}

// New creates all collectors and registers them with reg. A nil reg means
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
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
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		LexiconLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "merged_lexicon_lookups_total",
				Help: "Merged lexicon term lookups by result (hit, resolved, absent).",
			},
			[]string{"result"},
		),
		TermsAssignedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "merged_lexicon_terms_assigned_total",
				Help: "Global term ids assigned by the merged lexicon.",
			},
		),
		PostingsIterated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "merged_postings_iterated_total",
				Help: "Postings emitted by merged posting iterators.",
			},
		),
		ShardDocCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shard_document_count",
				Help: "Number of documents per merged shard.",
			},
			[]string{"shard"},
		),
		ActiveShards: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_shards",
				Help: "Number of shards in the active merged index.",
			},
		),
		MergeReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "merge_layer_reloads_total",
				Help: "Merged index rebuilds by status.",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.LexiconLookupsTotal,
		m.TermsAssignedTotal,
		m.PostingsIterated,
		m.ShardDocCount,
		m.ActiveShards,
		m.MergeReloadsTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for g. A nil g means
// prometheus.DefaultGatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
