package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drumstick90/authordigest/internal/domain"
)

func TestSummarize(t *testing.T) {
	t.Parallel()

	session := domain.Session{
		{
			WorkID: "W1", Extracted: true,
			Theme: "androgen signaling", StudyType: domain.StudyTypeClinical,
			Keywords: []string{"androgen", "BPH"}, EvidenceLevel: 2,
			Novelty: domain.NoveltyNovel, DrugsStudied: []string{"finasteride"},
			Conditions: []string{"BPH"}, Biomarkers: []string{"PSA"},
			Limitations: "small n", ClinicalImplication: "supports use",
		},
		{
			WorkID: "W2", Extracted: true,
			Theme: "androgen signaling", StudyType: domain.StudyTypeReview,
			Keywords: []string{"androgen"}, EvidenceLevel: 1,
			Novelty: domain.NoveltySynthesis, DrugsStudied: []string{"finasteride", ""},
		},
		{WorkID: "W3", Extracted: false, Error: "boom"},
	}

	sum := Summarize(session)

	require.NotEmpty(t, sum.TopThemes)
	assert.Equal(t, TermCount{Term: "androgen signaling", Count: 2}, sum.TopThemes[0])
	assert.Equal(t, map[string]int{"clinical": 1, "review": 1}, sum.StudyTypes)
	assert.Equal(t, TermCount{Term: "androgen", Count: 2}, sum.TopKeywords[0])
	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 0, 4: 0, 5: 0}, sum.EvidenceLevels)
	assert.Equal(t, map[string]int{"novel": 1, "synthesis": 1}, sum.Novelty)
	// Empty entity strings are skipped.
	assert.Equal(t, []TermCount{{Term: "finasteride", Count: 2}}, sum.TopDrugs)
	assert.Equal(t, 1, sum.WithLimitations)
	assert.Equal(t, 1, sum.WithClinicalImplications)
}

func TestSummarize_EmptySession(t *testing.T) {
	t.Parallel()

	sum := Summarize(domain.Session{})
	assert.Empty(t, sum.TopThemes)
	assert.Equal(t, map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}, sum.EvidenceLevels)
	assert.Zero(t, sum.WithLimitations)
}

func TestTopN(t *testing.T) {
	t.Parallel()

	counts := map[string]int{"b": 3, "a": 3, "c": 1, "d": 5}
	got := topN(counts, 3)

	// Highest count first, alphabetical on ties, truncated to n.
	assert.Equal(t, []TermCount{{"d", 5}, {"a", 3}, {"b", 3}}, got)
}
