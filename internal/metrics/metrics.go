// Package metrics exposes Prometheus collectors for the HTTP API, queries and
// ingestion. All recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	AsksTotal   *prometheus.CounterVec
	AskDuration prometheus.Histogram

	IngestionsTotal   *prometheus.CounterVec
	IngestionDuration prometheus.Histogram
	IndexChunks       prometheus.Gauge

	EmbeddingFailuresTotal prometheus.Counter
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
//
// Metrics:
//   - docchat_http_requests_total{method,route,status}
//   - docchat_http_request_duration_seconds{method,route}
//   - docchat_asks_total{outcome} - completed, failed, aborted
//   - docchat_ask_duration_seconds
//   - docchat_ingestions_total{status} - succeeded, failed
//   - docchat_ingestion_duration_seconds
//   - docchat_index_chunks - chunks in the active index
//   - docchat_embedding_failures_total
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docchat_http_requests_total",
				Help: "Total number of HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docchat_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AsksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docchat_asks_total",
				Help: "Total number of questions answered, by outcome",
			},
			[]string{"outcome"},
		),
		AskDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docchat_ask_duration_seconds",
				Help:    "Time from accepting a question to the end of its stream",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
		),
		IngestionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docchat_ingestions_total",
				Help: "Total number of ingestion tasks, by final status",
			},
			[]string{"status"},
		),
		IngestionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docchat_ingestion_duration_seconds",
				Help:    "Ingestion task duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		IndexChunks: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "docchat_index_chunks",
				Help: "Number of chunks in the active vector index",
			},
		),
		EmbeddingFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "docchat_embedding_failures_total",
				Help: "Total number of embedding requests that failed after retries",
			},
		),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordAsk(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AsksTotal.WithLabelValues(outcome).Inc()
	m.AskDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordIngestion(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.IngestionsTotal.WithLabelValues(status).Inc()
	m.IngestionDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) SetIndexChunks(n int) {
	if m == nil {
		return
	}
	m.IndexChunks.Set(float64(n))
}

func (m *Metrics) RecordEmbeddingFailure() {
	if m == nil {
		return
	}
	m.EmbeddingFailuresTotal.Inc()
}
