// Package metrics exposes Prometheus collectors for the ranking pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	stageRecordsTotal          *prometheus.CounterVec
	claimOutcomesTotal         *prometheus.CounterVec
	extractDurationSeconds     *prometheus.HistogramVec
	searchResultsTotal         *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		stageRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranker_stage_records_total",
				Help: "Records handled by a pipeline stage, labeled by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		)

		claimOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranker_claim_outcomes_total",
				Help: "Claim attempts, labeled by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		)

		extractDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ranker_extract_duration_seconds",
				Help:    "Histogram of extractor call latencies, labeled by result.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 180, 300},
			},
			[]string{"result"},
		)

		searchResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranker_search_results_total",
				Help: "Search results observed, labeled by search source and locale.",
			},
			[]string{"source", "locale"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ranker_active_workers",
				Help: "Number of enrichment workers currently processing a channel.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ranker_rate_limit_delays_seconds",
				Help:    "Histogram of search rate limit waits, labeled by search source.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"source"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStage adds n records to the stage counter for the given outcome.
func ObserveStage(stage, outcome string, n int) {
	Init()
	if n <= 0 {
		return
	}
	stageRecordsTotal.WithLabelValues(stage, outcome).Add(float64(n))
}

// ObserveClaim counts one claim attempt.
func ObserveClaim(stage, outcome string) {
	Init()
	claimOutcomesTotal.WithLabelValues(stage, outcome).Inc()
}

// ObserveExtract records an extractor call.
func ObserveExtract(result string, duration time.Duration) {
	Init()
	extractDurationSeconds.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveSearch counts results returned by a search source.
func ObserveSearch(source, locale string, results int) {
	Init()
	if results <= 0 {
		return
	}
	searchResultsTotal.WithLabelValues(source, locale).Add(float64(results))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(source string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(source).Observe(duration.Seconds())
}
