package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the author digest service.
// Metrics are organized by subsystem: extraction sessions, per-item
// extraction, LLM requests, synthesis, work sources, and the progress
// stream. All collectors are registered via promauto with the default
// Prometheus registry.
type Metrics struct {
	// ExtractionsStarted counts extraction sessions initiated.
	ExtractionsStarted prometheus.Counter

	// ExtractionsCompleted counts extraction sessions that finished.
	ExtractionsCompleted prometheus.Counter

	// ExtractionsFailed counts extraction sessions that ended with a
	// terminal error event.
	ExtractionsFailed prometheus.Counter

	// ExtractionDuration observes end-to-end session duration in seconds.
	ExtractionDuration prometheus.Histogram

	// ItemsExtracted counts per-item extraction outcomes, labeled by
	// result ("success", "failure").
	ItemsExtracted *prometheus.CounterVec

	// ItemRetries counts per-item retries after transient provider errors.
	ItemRetries prometheus.Counter

	// LLMRequestsTotal counts LLM API requests, labeled by provider,
	// model, and operation ("extract", "synthesize", "analyze").
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed LLM API requests, labeled by
	// provider, model, operation, and error type.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes LLM API request duration in seconds,
	// labeled by provider and operation.
	LLMRequestDuration *prometheus.HistogramVec

	// SynthesisRequests counts synthesis and analyze calls, labeled by mode.
	SynthesisRequests *prometheus.CounterVec

	// SourceRequestsTotal counts HTTP requests to work source APIs,
	// labeled by source.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed work source requests, labeled by
	// source.
	SourceRequestsFailed *prometheus.CounterVec

	// AbstractFallbacks counts fallback abstract lookups, labeled by the
	// method that found the abstract ("pmid", "doi", "title", "none").
	AbstractFallbacks *prometheus.CounterVec

	// ProgressDropped counts progress messages dropped because a session's
	// channel was full.
	ProgressDropped prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ExtractionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_started_total",
			Help:      "Total number of extraction sessions started",
		}),
		ExtractionsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_completed_total",
			Help:      "Total number of extraction sessions completed",
		}),
		ExtractionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_failed_total",
			Help:      "Total number of extraction sessions that failed",
		}),
		ExtractionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "End-to-end extraction session duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		ItemsExtracted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_extracted_total",
			Help:      "Per-item extraction outcomes",
		}, []string{"result"}),
		ItemRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_retries_total",
			Help:      "Retries performed after transient provider errors",
		}),
		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total LLM API requests",
		}, []string{"provider", "model", "operation"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Failed LLM API requests",
		}, []string{"provider", "model", "operation", "error_type"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		SynthesisRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_requests_total",
			Help:      "Synthesis and analyze requests",
		}, []string{"mode"}),
		SourceRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "HTTP requests to work source APIs",
		}, []string{"source"}),
		SourceRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Failed HTTP requests to work source APIs",
		}, []string{"source"}),
		AbstractFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "abstract_fallbacks_total",
			Help:      "Fallback abstract lookups by resolution method",
		}, []string{"method"}),
		ProgressDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_messages_dropped_total",
			Help:      "Progress messages dropped due to a full session channel",
		}),
	}
}
