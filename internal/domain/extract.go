package domain

import "sort"

// StudyType classifies the design of a study.
type StudyType string

// Study type values emitted by the extraction schema.
const (
	StudyTypeExperimental  StudyType = "experimental"
	StudyTypeReview        StudyType = "review"
	StudyTypeClinical      StudyType = "clinical"
	StudyTypeComputational StudyType = "computational"
	StudyTypeMetaAnalysis  StudyType = "meta-analysis"
	StudyTypeTheoretical   StudyType = "theoretical"
	StudyTypeCaseReport    StudyType = "case-report"
	StudyTypeOther         StudyType = "other"
)

// Novelty classifies how a work relates to prior literature.
type Novelty string

// Novelty values emitted by the extraction schema.
const (
	NoveltyNovel       Novelty = "novel"
	NoveltyReplication Novelty = "replication"
	NoveltyIncremental Novelty = "incremental"
	NoveltySynthesis   Novelty = "synthesis"
)

// ExtractedRecord is the output of one extraction call over one work's
// abstract. When Extracted is false, only WorkID, Title, and Error are
// meaningful.
type ExtractedRecord struct {
	// WorkID is copied from the source WorkItem.
	WorkID string `json:"openalex_id"`
	// Title is copied from the source WorkItem.
	Title string `json:"title,omitempty"`
	// Year is the publication year copied from the source WorkItem.
	Year int `json:"year,omitempty"`
	// Extracted reports whether extraction succeeded.
	Extracted bool `json:"extracted"`
	// Error holds the failure message when Extracted is false.
	Error string `json:"error,omitempty"`

	// Core fields.
	Theme       string    `json:"theme,omitempty"`
	Methodology string    `json:"methodology,omitempty"`
	Finding     string    `json:"finding,omitempty"`
	StudyType   StudyType `json:"study_type,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`

	// PICO framework fields for clinical and empirical studies.
	Population   string `json:"population,omitempty"`
	Intervention string `json:"intervention,omitempty"`
	Comparison   string `json:"comparison,omitempty"`
	Outcome      string `json:"outcome,omitempty"`
	SampleSize   string `json:"sample_size,omitempty"`
	// EvidenceLevel is 1 (strongest) to 5 (weakest); zero means unset.
	EvidenceLevel int `json:"evidence_level,omitempty"`

	// Research characterization.
	Novelty             Novelty `json:"novelty,omitempty"`
	Limitations         string  `json:"limitations,omitempty"`
	ClinicalImplication string  `json:"clinical_implication,omitempty"`

	// Entity extraction.
	DrugsStudied     []string `json:"drugs_studied,omitempty"`
	Conditions       []string `json:"conditions,omitempty"`
	Biomarkers       []string `json:"biomarkers,omitempty"`
	OutcomesMeasured []string `json:"outcomes_measured,omitempty"`
}

// Session is the ordered result set of one extraction run for one subject,
// sorted by publication year descending after completion. A new run for the
// same subject supersedes the previous session wholesale.
type Session []ExtractedRecord

// SuccessCount returns the number of records with Extracted set.
func (s Session) SuccessCount() int {
	n := 0
	for i := range s {
		if s[i].Extracted {
			n++
		}
	}
	return n
}

// Successful returns only the records that were extracted successfully.
func (s Session) Successful() []ExtractedRecord {
	out := make([]ExtractedRecord, 0, len(s))
	for i := range s {
		if s[i].Extracted {
			out = append(out, s[i])
		}
	}
	return out
}

// SortByYearDesc sorts the session newest-first. The sort is stable so
// records with equal years keep their existing relative order.
func (s Session) SortByYearDesc() {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].Year > s[j].Year
	})
}

// CacheEntry is the durable on-disk snapshot of a session for one subject.
type CacheEntry struct {
	SubjectID   string  `json:"subject_id"`
	SubjectName string  `json:"subject_name,omitempty"`
	Extracts    Session `json:"extracts"`
	Count       int     `json:"count"`
}
