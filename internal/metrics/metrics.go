// Package metrics defines Prometheus metrics for threadline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threadline_http_request_duration_seconds",
			Help:    "Status server request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadline_http_requests_total",
			Help: "Total status server requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadline_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	SeriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadline_series_total",
			Help: "Series processed by outcome",
		},
		[]string{"result"},
	)

	LinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadline_lines_total",
			Help: "Dialogue lines handled by kind and outcome",
		},
		[]string{"kind", "result"},
	)

	CompletionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threadline_completion_request_duration_seconds",
			Help:    "Completion service request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"endpoint", "status"},
	)

	ContextEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "threadline_context_evictions_total",
			Help: "Context window entries evicted to fit the token budget",
		},
	)

	PromptTokens = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "threadline_prompt_tokens",
			Help:    "Token count of fitted prompts",
			Buckets: prometheus.LinearBuckets(64, 64, 16),
		},
	)

	CircuitOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "threadline_completion_circuit_open",
			Help: "1 while the completion circuit breaker rejects requests",
		},
	)

	SeriesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "threadline_series_in_flight",
			Help: "Series currently being translated",
		},
	)

	DBConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "threadline_db_connections",
			Help: "PostgreSQL pool connections by state",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		SeriesTotal, LinesTotal,
		CompletionDuration, ContextEvictions, PromptTokens,
		CircuitOpen, SeriesInFlight, DBConnections,
	)
}
