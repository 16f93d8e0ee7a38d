// Package metrics provides Prometheus collectors for indexing, retrieval
// and answer generation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "quackdas"
)

// Request outcome labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

var (
	// Inference endpoint metrics
	EmbeddingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"status"},
	)

	EmbeddingRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	ChatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of chat completion requests",
		},
		[]string{"status"},
	)

	ChatRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "request_duration_seconds",
			Help:      "Chat completion duration in seconds",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// Indexing metrics
	ChunksEmbeddedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "chunks_embedded_total",
			Help:      "Total number of chunks embedded and committed",
		},
	)

	DocumentsIndexedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "documents_total",
			Help:      "Documents processed by indexing runs",
		},
		[]string{"result"}, // indexed, unchanged, skipped, removed, remapped
	)

	// Ask metrics
	AskAnswersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ask",
			Name:      "answers_total",
			Help:      "Answers returned by the ask pipeline",
		},
		[]string{"mode", "outcome"}, // outcome: grounded, insufficient, fallback
	)

	AskRepairsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ask",
			Name:      "repairs_total",
			Help:      "Repair prompts issued after invalid model output",
		},
	)

	// Job metrics
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "total",
			Help:      "Background jobs by kind and terminal status",
		},
		[]string{"kind", "status"},
	)

	ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "active",
			Help:      "Currently running background jobs",
		},
	)
)

// ObserveEmbedding records one embedding request.
func ObserveEmbedding(start time.Time, err error) {
	EmbeddingRequestsTotal.WithLabelValues(status(err)).Inc()
	EmbeddingRequestDuration.Observe(time.Since(start).Seconds())
}

// ObserveChat records one chat request.
func ObserveChat(start time.Time, err error) {
	ChatRequestsTotal.WithLabelValues(status(err)).Inc()
	ChatRequestDuration.Observe(time.Since(start).Seconds())
}

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
