package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics.
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaptr_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chaptr_api_request_duration_seconds",
			Help:    "API request latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Ingestion pipeline metrics.
var (
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaptr_pipeline_runs_total",
			Help: "Total number of pipeline stage runs",
		},
		[]string{"stage", "status"}, // stage: process, index; status: ok, noop, conflict, error
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chaptr_pipeline_stage_duration_seconds",
			Help:    "Pipeline stage duration distribution",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	ChunksPerDocument = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chaptr_chunks_per_document",
			Help:    "Number of chunks produced per document",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)
)

// Retrieval and chat metrics.
var (
	RetrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaptr_retrievals_total",
			Help: "Total number of similarity retrievals",
		},
		[]string{"status"},
	)

	RetrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chaptr_retrieval_duration_seconds",
			Help:    "Retrieval latency distribution",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2},
		},
	)

	ChatTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaptr_chat_turns_total",
			Help: "Total number of chat turns answered",
		},
		[]string{"status"}, // status: ok, no_context, error
	)

	ChatTurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chaptr_chat_turn_duration_seconds",
			Help:    "End-to-end chat turn latency distribution",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
)

// External model call metrics.
var (
	ModelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaptr_model_calls_total",
			Help: "Total number of external model calls",
		},
		[]string{"provider", "model", "status"},
	)

	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chaptr_model_call_duration_seconds",
			Help:    "External model call latency distribution",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "model"},
	)
)

// Embedding cache metrics.
var (
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaptr_cache_hits_total",
			Help: "Embedding cache hits",
		},
		[]string{"layer"}, // layer: local, redis
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chaptr_cache_misses_total",
			Help: "Embedding cache misses",
		},
	)
)
