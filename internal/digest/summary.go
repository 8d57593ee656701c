package digest

import (
	"sort"

	"github.com/drumstick90/authordigest/internal/domain"
)

// TermCount is one term with its occurrence count across a session.
type TermCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// SessionSummary aggregates the successful records of a session for the
// extracts overview endpoint.
type SessionSummary struct {
	TopThemes                []TermCount    `json:"top_themes"`
	StudyTypes               map[string]int `json:"study_types"`
	TopKeywords              []TermCount    `json:"top_keywords"`
	EvidenceLevels           map[int]int    `json:"evidence_levels"`
	Novelty                  map[string]int `json:"novelty"`
	TopDrugs                 []TermCount    `json:"top_drugs"`
	TopConditions            []TermCount    `json:"top_conditions"`
	TopBiomarkers            []TermCount    `json:"top_biomarkers"`
	WithLimitations          int            `json:"with_limitations"`
	WithClinicalImplications int            `json:"with_clinical_implications"`
}

// Summarize aggregates themes, study types, keywords, evidence levels, and
// extracted entities over the successful records of a session. Failed
// records are skipped.
func Summarize(session domain.Session) SessionSummary {
	themes := map[string]int{}
	studyTypes := map[string]int{}
	keywords := map[string]int{}
	evidence := map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
	novelty := map[string]int{}
	drugs := map[string]int{}
	conditions := map[string]int{}
	biomarkers := map[string]int{}
	limitations := 0
	clinical := 0

	for i := range session {
		ext := &session[i]
		if !ext.Extracted {
			continue
		}

		themes[orDefault(ext.Theme, "Unknown")]++
		studyTypes[orDefault(string(ext.StudyType), "Unknown")]++
		for _, kw := range ext.Keywords {
			keywords[kw]++
		}
		if ext.EvidenceLevel >= 1 && ext.EvidenceLevel <= 5 {
			evidence[ext.EvidenceLevel]++
		}
		if ext.Novelty != "" {
			novelty[string(ext.Novelty)]++
		}
		for _, d := range ext.DrugsStudied {
			if d != "" {
				drugs[d]++
			}
		}
		for _, c := range ext.Conditions {
			if c != "" {
				conditions[c]++
			}
		}
		for _, b := range ext.Biomarkers {
			if b != "" {
				biomarkers[b]++
			}
		}
		if ext.Limitations != "" {
			limitations++
		}
		if ext.ClinicalImplication != "" {
			clinical++
		}
	}

	return SessionSummary{
		TopThemes:                topN(themes, 10),
		StudyTypes:               studyTypes,
		TopKeywords:              topN(keywords, 20),
		EvidenceLevels:           evidence,
		Novelty:                  novelty,
		TopDrugs:                 topN(drugs, 10),
		TopConditions:            topN(conditions, 10),
		TopBiomarkers:            topN(biomarkers, 10),
		WithLimitations:          limitations,
		WithClinicalImplications: clinical,
	}
}

// topN returns the n most frequent terms, highest count first, ties broken
// alphabetically for stable output.
func topN(counts map[string]int, n int) []TermCount {
	out := make([]TermCount, 0, len(counts))
	for term, count := range counts {
		out = append(out, TermCount{Term: term, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
