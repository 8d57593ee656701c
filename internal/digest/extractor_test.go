package digest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drumstick90/authordigest/internal/domain"
	"github.com/drumstick90/authordigest/internal/llm"
)

// fakeGenerator implements llm.Generator with a caller-supplied function.
type fakeGenerator struct {
	mu       sync.Mutex
	calls    int
	requests []llm.GenerateRequest
	fn       func(call int, req llm.GenerateRequest) (string, error)
	provider string
	model    string
}

func (f *fakeGenerator) Generate(_ context.Context, req llm.GenerateRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.fn(call, req)
}

func (f *fakeGenerator) Provider() string {
	if f.provider == "" {
		return "fake"
	}
	return f.provider
}

func (f *fakeGenerator) Model() string {
	if f.model == "" {
		return "fake-model"
	}
	return f.model
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

const validExtractionJSON = `{
	"theme": "androgen receptor signaling",
	"methodology": "randomized controlled trial",
	"finding": "Treatment reduced symptom scores significantly.",
	"study_type": "clinical",
	"keywords": ["androgen", "BPH", "RCT"],
	"population": "adult males with BPH",
	"intervention": "finasteride 5mg daily",
	"comparison": "placebo",
	"outcome": "symptom score",
	"sample_size": "n=240",
	"evidence_level": 2,
	"novelty": "incremental",
	"limitations": "single center",
	"clinical_implication": "supports first-line use",
	"drugs_studied": ["finasteride"],
	"conditions": ["benign prostatic hyperplasia"],
	"biomarkers": ["PSA"],
	"outcomes_measured": ["IPSS"]
}`

// newTestExtractor builds an extractor with fast injected clocks.
func newTestExtractor(gen llm.Generator, cfg ExtractorConfig) (*Extractor, *[]time.Duration) {
	e := NewExtractor(gen, cfg, zerolog.Nop())
	sleeps := &[]time.Duration{}
	var mu sync.Mutex
	e.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		*sleeps = append(*sleeps, d)
		mu.Unlock()
		return nil
	}
	fixed := time.Now()
	e.now = func() time.Time { return fixed }
	return e, sleeps
}

func testWorks() []domain.WorkItem {
	return []domain.WorkItem{
		{ID: "W1", Title: "Older paper", PublicationYear: 2015, Abstract: "Abstract one."},
		{ID: "W2", Title: "Newer paper", PublicationYear: 2022, Abstract: "Abstract two."},
		{ID: "W3", Title: "No abstract here", PublicationYear: 2020},
	}
}

func TestExtractAll_Success(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fn: func(int, llm.GenerateRequest) (string, error) {
		return validExtractionJSON, nil
	}}
	e, _ := newTestExtractor(gen, ExtractorConfig{MaxWorkers: 2, RequestsPerMinute: 6000})

	session, err := e.ExtractAll(context.Background(), testWorks(), nil)
	require.NoError(t, err)

	// W3 has no abstract and is skipped.
	require.Len(t, session, 2)
	assert.Equal(t, 2, gen.callCount())

	// Sorted newest first.
	assert.Equal(t, "W2", session[0].WorkID)
	assert.Equal(t, 2022, session[0].Year)
	assert.Equal(t, "W1", session[1].WorkID)

	rec := session[0]
	assert.True(t, rec.Extracted)
	assert.Equal(t, "androgen receptor signaling", rec.Theme)
	assert.Equal(t, domain.StudyTypeClinical, rec.StudyType)
	assert.Equal(t, 2, rec.EvidenceLevel)
	assert.Equal(t, domain.NoveltyIncremental, rec.Novelty)
	assert.Equal(t, []string{"finasteride"}, rec.DrugsStudied)
}

func TestExtractAll_RequestsJSONMode(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fn: func(int, llm.GenerateRequest) (string, error) {
		return validExtractionJSON, nil
	}}
	e, _ := newTestExtractor(gen, ExtractorConfig{MaxWorkers: 1, RequestsPerMinute: 6000})

	_, err := e.ExtractAll(context.Background(), testWorks()[:1], nil)
	require.NoError(t, err)

	require.Len(t, gen.requests, 1)
	assert.True(t, gen.requests[0].JSONMode)
	assert.Contains(t, gen.requests[0].Prompt, "Abstract one.")
	assert.Contains(t, gen.requests[0].Prompt, "Title: Older paper")
	assert.Contains(t, gen.requests[0].Prompt, "Year: 2015")
}

func TestExtractAll_ProgressInCompletionOrder(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fn: func(int, llm.GenerateRequest) (string, error) {
		return validExtractionJSON, nil
	}}
	// Single worker keeps completion order deterministic.
	e, _ := newTestExtractor(gen, ExtractorConfig{MaxWorkers: 1, RequestsPerMinute: 6000})

	type update struct {
		completed, total int
		message          string
	}
	var updates []update
	_, err := e.ExtractAll(context.Background(), testWorks(), func(completed, total int, message string) {
		updates = append(updates, update{completed, total, message})
	})
	require.NoError(t, err)

	require.Len(t, updates, 2)
	assert.Equal(t, update{1, 2, "✓ Older paper..."}, updates[0])
	assert.Equal(t, update{2, 2, "✓ Newer paper..."}, updates[1])
}

func TestExtractAll_ProgressTruncatesLongTitles(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 60)
	gen := &fakeGenerator{fn: func(int, llm.GenerateRequest) (string, error) {
		return "", &llm.APIError{Provider: "fake", StatusCode: 400, Message: "bad request"}
	}}
	e, _ := newTestExtractor(gen, ExtractorConfig{MaxWorkers: 1, RequestsPerMinute: 6000})

	var message string
	_, err := e.ExtractAll(context.Background(), []domain.WorkItem{
		{ID: "W1", Title: long, Abstract: "text"},
	}, func(_, _ int, msg string) {
		message = msg
	})
	require.NoError(t, err)

	assert.Equal(t, "⚠ "+strings.Repeat("x", 40)+"...", message)
}

func TestExtractAll_RateFloor(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fn: func(int, llm.GenerateRequest) (string, error) {
		return validExtractionJSON, nil
	}}
	// 5 workers at 50 RPM: each item must occupy its worker for 6 seconds.
	e, sleeps := newTestExtractor(gen, ExtractorConfig{MaxWorkers: 5, RequestsPerMinute: 50})

	_, err := e.ExtractAll(context.Background(), testWorks(), nil)
	require.NoError(t, err)

	require.Len(t, *sleeps, 2)
	for _, d := range *sleeps {
		assert.Equal(t, 6*time.Second, d)
	}
}

func TestExtractAll_RetriesTransientWithBackoff(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fn: func(call int, _ llm.GenerateRequest) (string, error) {
		if call <= 2 {
			return "", &llm.APIError{Provider: "fake", StatusCode: 429, Message: "rate limited"}
		}
		return validExtractionJSON, nil
	}}
	e, sleeps := newTestExtractor(gen, ExtractorConfig{MaxWorkers: 1, RequestsPerMinute: 6000, MaxRetries: 3})

	retries := 0
	e.OnRetry(func() { retries++ })

	session, err := e.ExtractAll(context.Background(), testWorks()[:1], nil)
	require.NoError(t, err)
	require.Len(t, session, 1)
	assert.True(t, session[0].Extracted)
	assert.Equal(t, 3, gen.callCount())
	assert.Equal(t, 2, retries)

	// Backoff 2s then 4s, then the rate floor sleep after success.
	require.Len(t, *sleeps, 3)
	assert.Equal(t, 2*time.Second, (*sleeps)[0])
	assert.Equal(t, 4*time.Second, (*sleeps)[1])
	assert.Equal(t, 10*time.Millisecond, (*sleeps)[2])
}

func TestExtractAll_NonTransientFailsImmediately(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fn: func(int, llm.GenerateRequest) (string, error) {
		return "", &llm.APIError{Provider: "fake", StatusCode: 400, Message: "invalid request"}
	}}
	e, _ := newTestExtractor(gen, ExtractorConfig{MaxWorkers: 1, RequestsPerMinute: 6000, MaxRetries: 3})

	session, err := e.ExtractAll(context.Background(), testWorks()[:1], nil)
	require.NoError(t, err)
	require.Len(t, session, 1)

	assert.False(t, session[0].Extracted)
	assert.Equal(t, "W1", session[0].WorkID)
	assert.Equal(t, "Older paper", session[0].Title)
	assert.Contains(t, session[0].Error, "invalid request")
	assert.Equal(t, 1, gen.callCount())
}

func TestExtractAll_RetriesExhausted(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fn: func(int, llm.GenerateRequest) (string, error) {
		return "", &llm.APIError{Provider: "fake", StatusCode: 429, Message: "rate limited"}
	}}
	e, _ := newTestExtractor(gen, ExtractorConfig{MaxWorkers: 1, RequestsPerMinute: 6000, MaxRetries: 3})

	session, err := e.ExtractAll(context.Background(), testWorks()[:1], nil)
	require.NoError(t, err)
	require.Len(t, session, 1)
	assert.False(t, session[0].Extracted)
	assert.Equal(t, 3, gen.callCount())
}

func TestExtractAll_MalformedResponseNotRetried(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fn: func(int, llm.GenerateRequest) (string, error) {
		return "this is not json", nil
	}}
	e, _ := newTestExtractor(gen, ExtractorConfig{MaxWorkers: 1, RequestsPerMinute: 6000, MaxRetries: 3})

	session, err := e.ExtractAll(context.Background(), testWorks()[:1], nil)
	require.NoError(t, err)
	require.Len(t, session, 1)
	assert.False(t, session[0].Extracted)
	assert.Contains(t, session[0].Error, "not valid JSON")
	assert.Equal(t, 1, gen.callCount())
}

func TestExtractAll_StripsCodeFence(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fn: func(int, llm.GenerateRequest) (string, error) {
		return "```json\n" + validExtractionJSON + "\n```", nil
	}}
	e, _ := newTestExtractor(gen, ExtractorConfig{MaxWorkers: 1, RequestsPerMinute: 6000})

	session, err := e.ExtractAll(context.Background(), testWorks()[:1], nil)
	require.NoError(t, err)
	require.Len(t, session, 1)
	assert.True(t, session[0].Extracted)
	assert.Equal(t, "androgen receptor signaling", session[0].Theme)
}

func TestExtractAll_NoEligibleWorks(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fn: func(int, llm.GenerateRequest) (string, error) {
		t.Fatal("generator should not be called")
		return "", nil
	}}
	e, _ := newTestExtractor(gen, ExtractorConfig{MaxWorkers: 1, RequestsPerMinute: 6000})

	session, err := e.ExtractAll(context.Background(), []domain.WorkItem{{ID: "W1", Title: "No abstract"}}, nil)
	require.NoError(t, err)
	assert.Empty(t, session)
}

func TestExtractAll_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGenerator{fn: func(call int, _ llm.GenerateRequest) (string, error) {
		if call == 1 {
			cancel()
		}
		return validExtractionJSON, nil
	}}
	e, _ := newTestExtractor(gen, ExtractorConfig{MaxWorkers: 1, RequestsPerMinute: 6000})

	works := make([]domain.WorkItem, 10)
	for i := range works {
		works[i] = domain.WorkItem{ID: "W", Title: "t", Abstract: "a", PublicationYear: 2000 + i}
	}

	session, err := e.ExtractAll(ctx, works, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, len(session), 10)
}

func TestExtractAll_ProgressMonotonicUnderConcurrency(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fn: func(int, llm.GenerateRequest) (string, error) {
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
		return validExtractionJSON, nil
	}}
	e, _ := newTestExtractor(gen, ExtractorConfig{MaxWorkers: 8, RequestsPerMinute: 600000})

	works := make([]domain.WorkItem, 120)
	for i := range works {
		works[i] = domain.WorkItem{
			ID:              fmt.Sprintf("W%03d", i),
			Title:           "t",
			Abstract:        "a",
			PublicationYear: 2021,
		}
	}

	var seen []int
	_, err := e.ExtractAll(context.Background(), works, func(completed, total int, _ string) {
		assert.Equal(t, 120, total)
		seen = append(seen, completed)
	})
	require.NoError(t, err)

	// One call per item, completed counting up without gaps or reordering.
	require.Len(t, seen, 120)
	for i, c := range seen {
		assert.Equal(t, i+1, c)
	}
}

func TestExtractAll_DeterministicOrderUnderRandomLatency(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fn: func(int, llm.GenerateRequest) (string, error) {
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
		return validExtractionJSON, nil
	}}

	// Thirty works sharing one year, bracketed by a newer and an older
	// work, so ties dominate the final order.
	works := []domain.WorkItem{
		{ID: "Wnew", Title: "t", Abstract: "a", PublicationYear: 2024},
	}
	for i := 0; i < 30; i++ {
		works = append(works, domain.WorkItem{
			ID:              fmt.Sprintf("W%02d", i),
			Title:           "t",
			Abstract:        "a",
			PublicationYear: 2021,
		})
	}
	works = append(works, domain.WorkItem{ID: "Wold", Title: "t", Abstract: "a", PublicationYear: 2015})

	want := make([]string, 0, len(works))
	for i := range works {
		want = append(want, works[i].ID)
	}

	for run := 0; run < 2; run++ {
		e, _ := newTestExtractor(gen, ExtractorConfig{MaxWorkers: 6, RequestsPerMinute: 600000})
		session, err := e.ExtractAll(context.Background(), works, nil)
		require.NoError(t, err)
		require.Len(t, session, len(works))

		got := make([]string, 0, len(session))
		for i := range session {
			got = append(got, session[i].WorkID)
		}
		// Year descending, same-year works in input order, regardless of
		// which worker finished first.
		assert.Equal(t, want, got, "run %d", run)
	}
}

func TestExtractAll_GeneratorPanicReturnsError(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fn: func(call int, _ llm.GenerateRequest) (string, error) {
		if call == 2 {
			panic("boom")
		}
		return validExtractionJSON, nil
	}}
	e, _ := newTestExtractor(gen, ExtractorConfig{MaxWorkers: 1, RequestsPerMinute: 600000})

	works := make([]domain.WorkItem, 5)
	for i := range works {
		works[i] = domain.WorkItem{ID: fmt.Sprintf("W%d", i), Title: "t", Abstract: "a"}
	}

	session, err := e.ExtractAll(context.Background(), works, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	// The item completed before the panic is kept.
	assert.Len(t, session, 1)
}

func TestParseExtraction_CoercesEvidenceLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		level int
		want  int
	}{
		{"in range", 3, 3},
		{"strongest", 1, 1},
		{"weakest", 5, 5},
		{"above range", 7, 0},
		{"negative", -1, 0},
		{"unset", 0, 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw := fmt.Sprintf(`{"theme":"t","evidence_level":%d}`, tt.level)
			rec, err := parseExtraction(raw, domain.WorkItem{ID: "W1", Title: "t"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.EvidenceLevel)
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced with language", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced without language", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, stripCodeFence(tt.in))
		})
	}
}
