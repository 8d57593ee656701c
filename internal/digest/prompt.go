package digest

import (
	"fmt"
	"strings"

	"github.com/drumstick90/authordigest/internal/domain"
)

// extractionPromptTemplate instructs the model to return one structured
// record per abstract. The schema is fixed; every field must appear in the
// response so downstream parsing stays trivial.
const extractionPromptTemplate = `You are an expert research analyst. Analyze this academic abstract and extract comprehensive structured information for a graduate-level literature review.

Abstract:
%s

Title: %s
Year: %s

Extract ALL of the following fields as JSON. Use null for fields that cannot be determined from the abstract.

{
  "theme": "Main research theme in 3-5 words",
  "methodology": "Research approach/method in a short phrase",
  "finding": "Key finding or contribution in 1 sentence",
  "study_type": "One of: experimental, review, clinical, computational, meta-analysis, theoretical, case-report, other",
  "keywords": ["3-5 relevant keywords"],

  "population": "Who/what was studied (e.g., 'adult males with BPH', 'cancer cell lines') or null",
  "intervention": "What was tested/applied/measured or null",
  "comparison": "Control or comparison group if any, or null",
  "outcome": "Primary outcome or endpoint measured",
  "sample_size": "n=X, or 'not specified', or 'N/A' for reviews/theoretical",
  "evidence_level": "Integer 1-5 where: 1=systematic review/meta-analysis, 2=RCT, 3=cohort/case-control, 4=case series/case report, 5=expert opinion/theoretical",

  "novelty": "One of: novel (first to report), replication (confirming prior work), incremental (extending prior work), synthesis (combining existing knowledge)",
  "limitations": "Key limitation mentioned in abstract, or null if none stated",
  "clinical_implication": "Actionable clinical takeaway, or null if basic science/no clinical relevance",

  "drugs_studied": ["List specific drug/compound/supplement names mentioned, empty array if none"],
  "conditions": ["List diseases/syndromes/conditions studied, empty array if none"],
  "biomarkers": ["List biomarkers/lab values/measurements if any, empty array if none"],
  "outcomes_measured": ["List specific outcome variables/endpoints measured"]
}

Return ONLY the valid JSON object, no other text or markdown.`

// synthesisSystemPrompt is the shared system instruction for both
// extract-backed synthesis and direct abstract analysis.
const synthesisSystemPrompt = `You are a research analyst synthesizing insights from comprehensive extracted metadata of an academic author's publications.

You have access to structured extracts from ALL papers, each containing:

CORE: theme, methodology, finding, study_type, keywords
PICO: population, intervention, comparison, outcome, sample_size, evidence_level (1-5 scale)
RESEARCH: novelty (novel/replication/incremental/synthesis), limitations, clinical_implication
ENTITIES: drugs_studied, conditions, biomarkers, outcomes_measured

Evidence Level Scale:
- Level 1: Systematic review / meta-analysis (strongest)
- Level 2: Randomized controlled trial
- Level 3: Cohort or case-control study
- Level 4: Case series / case report
- Level 5: Expert opinion / theoretical (weakest)

Guidelines:
1. Synthesize patterns across the ENTIRE body of work
2. Consider evidence levels when assessing research strength
3. Identify research trajectories, methodological evolution, and thematic shifts over time
4. Note common limitations across studies
5. Highlight key drugs, conditions, and biomarkers studied
6. Be direct and concise - no hype or flourishes
7. Do NOT cite specific paper titles unless asked

Keep responses under 1500 characters unless more detail is requested.`

// BuildExtractionPrompt builds the per-abstract extraction prompt.
func BuildExtractionPrompt(work domain.WorkItem) string {
	title := work.Title
	if title == "" {
		title = "Unknown"
	}
	year := "Unknown"
	if work.PublicationYear > 0 {
		year = fmt.Sprintf("%d", work.PublicationYear)
	}
	return fmt.Sprintf(extractionPromptTemplate, work.Abstract, title, year)
}

// BuildSynthesisPrompt builds the user prompt for extract-backed synthesis.
// Records that failed extraction must be filtered out before calling.
func BuildSynthesisPrompt(extracts []domain.ExtractedRecord, question, subjectName string) string {
	if subjectName == "" {
		subjectName = "Unknown"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Author: %s\n", subjectName)
	fmt.Fprintf(&sb, "Total publications analyzed: %d\n\n", len(extracts))
	sb.WriteString("=== EXTRACTED METADATA FROM ALL PAPERS ===\n")
	sb.WriteString(buildExtractContext(extracts))
	sb.WriteString("\n=== END EXTRACTS ===\n\n")
	fmt.Fprintf(&sb, "Question: %s\n\n", question)
	sb.WriteString("Synthesize insights based on the extracted metadata above.")
	return sb.String()
}

// BuildAnalysisPrompt builds the user prompt for the direct-abstracts
// fallback path. Works without abstracts must be filtered out before calling.
func BuildAnalysisPrompt(works []domain.WorkItem, question, subjectName string) string {
	if subjectName == "" {
		subjectName = "Unknown"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Author: %s\n", subjectName)
	fmt.Fprintf(&sb, "Total publications with abstracts: %d\n\n", len(works))
	sb.WriteString("=== ALL ABSTRACTS ===\n")
	sb.WriteString(buildAbstractContext(works))
	sb.WriteString("\n=== END ABSTRACTS ===\n\n")
	fmt.Fprintf(&sb, "Question: %s\n\n", question)
	sb.WriteString("Please provide a comprehensive analysis based on ALL the abstracts above.")
	return sb.String()
}

// buildExtractContext renders one compact block per extract. Optional
// sections are emitted only when populated, which keeps the context far
// smaller than the raw abstracts it replaces.
func buildExtractContext(extracts []domain.ExtractedRecord) string {
	blocks := make([]string, 0, len(extracts))

	for i, ext := range extracts {
		var lines []string
		lines = append(lines, fmt.Sprintf("[%d] %s (%s)", i+1, orDefault(ext.Title, "Untitled"), yearLabel(ext.Year)))
		lines = append(lines, fmt.Sprintf("  Theme: %s", orDefault(ext.Theme, "N/A")))
		lines = append(lines, fmt.Sprintf("  Method: %s", orDefault(ext.Methodology, "N/A")))
		lines = append(lines, fmt.Sprintf("  Finding: %s", orDefault(ext.Finding, "N/A")))
		lines = append(lines, fmt.Sprintf("  Type: %s | Evidence Level: %s | Novelty: %s",
			orDefault(string(ext.StudyType), "N/A"), evidenceLabel(ext.EvidenceLevel), orDefault(string(ext.Novelty), "N/A")))

		if ext.Population != "" {
			lines = append(lines, fmt.Sprintf("  Population: %s", ext.Population))
		}
		if ext.Intervention != "" {
			lines = append(lines, fmt.Sprintf("  Intervention: %s", ext.Intervention))
		}
		if ext.SampleSize != "" && ext.SampleSize != "N/A" {
			lines = append(lines, fmt.Sprintf("  Sample: %s", ext.SampleSize))
		}

		if len(ext.DrugsStudied) > 0 {
			lines = append(lines, fmt.Sprintf("  Drugs: %s", strings.Join(ext.DrugsStudied, ", ")))
		}
		if len(ext.Conditions) > 0 {
			lines = append(lines, fmt.Sprintf("  Conditions: %s", strings.Join(ext.Conditions, ", ")))
		}
		if len(ext.Biomarkers) > 0 {
			lines = append(lines, fmt.Sprintf("  Biomarkers: %s", strings.Join(ext.Biomarkers, ", ")))
		}

		if ext.ClinicalImplication != "" {
			lines = append(lines, fmt.Sprintf("  Clinical Implication: %s", ext.ClinicalImplication))
		}
		if ext.Limitations != "" {
			lines = append(lines, fmt.Sprintf("  Limitations: %s", ext.Limitations))
		}
		lines = append(lines, fmt.Sprintf("  Keywords: %s", strings.Join(ext.Keywords, ", ")))

		blocks = append(blocks, strings.Join(lines, "\n"))
	}

	return strings.Join(blocks, "\n\n")
}

// buildAbstractContext renders full abstracts newest-first, one block per work.
func buildAbstractContext(works []domain.WorkItem) string {
	sorted := make([]domain.WorkItem, len(works))
	copy(sorted, works)
	domain.SortWorksByYearDesc(sorted)

	var lines []string
	for i, w := range sorted {
		lines = append(lines, fmt.Sprintf("[%d] %s (%s)", i+1, orDefault(w.Title, "Untitled"), yearLabel(w.PublicationYear)))
		lines = append(lines, w.Abstract)
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// estimateTokens approximates the token count of a prompt context.
// Word count times 1.3 is close enough for logging and responses.
func estimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * 1.3)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func yearLabel(year int) string {
	if year <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d", year)
}

func evidenceLabel(level int) string {
	if level <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d", level)
}
