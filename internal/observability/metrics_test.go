package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// Note: prometheus/promauto registers metrics globally, so we need to use
// unique namespaces per test to avoid registration conflicts.

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("test_authordigest_new")

	assert.NotNil(t, m.ExtractionsStarted)
	assert.NotNil(t, m.ExtractionsCompleted)
	assert.NotNil(t, m.ExtractionsFailed)
	assert.NotNil(t, m.ExtractionDuration)
	assert.NotNil(t, m.ItemsExtracted)
	assert.NotNil(t, m.ItemRetries)
	assert.NotNil(t, m.LLMRequestsTotal)
	assert.NotNil(t, m.LLMRequestsFailed)
	assert.NotNil(t, m.LLMRequestDuration)
	assert.NotNil(t, m.SynthesisRequests)
	assert.NotNil(t, m.SourceRequestsTotal)
	assert.NotNil(t, m.SourceRequestsFailed)
	assert.NotNil(t, m.AbstractFallbacks)
	assert.NotNil(t, m.ProgressDropped)
}

func TestExtractionCounters(t *testing.T) {
	m := NewMetrics("test_extraction_counters")

	m.ExtractionsStarted.Inc()
	m.ExtractionsCompleted.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ExtractionsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ExtractionsCompleted))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ExtractionsFailed))
}

func TestItemsExtractedByResult(t *testing.T) {
	m := NewMetrics("test_items_extracted")

	m.ItemsExtracted.WithLabelValues("success").Inc()
	m.ItemsExtracted.WithLabelValues("success").Inc()
	m.ItemsExtracted.WithLabelValues("failure").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ItemsExtracted.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ItemsExtracted.WithLabelValues("failure")))
}

func TestLLMRequestCounters(t *testing.T) {
	m := NewMetrics("test_llm_requests")

	m.LLMRequestsTotal.WithLabelValues("gemini", "gemini-2.0-flash", "extract").Inc()
	m.LLMRequestsFailed.WithLabelValues("gemini", "gemini-2.0-flash", "extract", "rate_limit").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("gemini", "gemini-2.0-flash", "extract")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LLMRequestsFailed.WithLabelValues("gemini", "gemini-2.0-flash", "extract", "rate_limit")))
}

func TestSynthesisRequestsByMode(t *testing.T) {
	m := NewMetrics("test_synthesis_requests")

	m.SynthesisRequests.WithLabelValues("synthesize").Inc()
	m.SynthesisRequests.WithLabelValues("analyze").Inc()
	m.SynthesisRequests.WithLabelValues("analyze").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SynthesisRequests.WithLabelValues("synthesize")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SynthesisRequests.WithLabelValues("analyze")))
}

func TestSourceRequestCounters(t *testing.T) {
	m := NewMetrics("test_source_requests")

	m.SourceRequestsTotal.WithLabelValues("openalex").Inc()
	m.SourceRequestsFailed.WithLabelValues("pubmed").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRequestsTotal.WithLabelValues("openalex")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRequestsFailed.WithLabelValues("pubmed")))
}

func TestAbstractFallbacksByMethod(t *testing.T) {
	m := NewMetrics("test_abstract_fallbacks")

	m.AbstractFallbacks.WithLabelValues("pmid").Inc()
	m.AbstractFallbacks.WithLabelValues("doi").Inc()
	m.AbstractFallbacks.WithLabelValues("pmid").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.AbstractFallbacks.WithLabelValues("pmid")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AbstractFallbacks.WithLabelValues("doi")))
}

func TestProgressDropped(t *testing.T) {
	m := NewMetrics("test_progress_dropped")

	m.ProgressDropped.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProgressDropped))
}
