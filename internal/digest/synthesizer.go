package digest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/drumstick90/authordigest/internal/domain"
	"github.com/drumstick90/authordigest/internal/llm"
)

// SynthesisResult is the answer to a question over cached extracts.
type SynthesisResult struct {
	Answer          string `json:"answer"`
	ExtractsUsed    int    `json:"extracts_used"`
	Model           string `json:"model"`
	EstimatedTokens int    `json:"estimated_tokens,omitempty"`
}

// AnalysisResult is the answer to a question over raw abstracts, used when
// no extraction session is available.
type AnalysisResult struct {
	Answer          string `json:"answer"`
	WorksAnalyzed   int    `json:"works_analyzed"`
	TotalWorks      int    `json:"total_works"`
	Model           string `json:"model"`
	EstimatedTokens int    `json:"estimated_tokens,omitempty"`
}

// Synthesizer answers questions about a subject's body of work, preferring
// the compact extracted metadata over raw abstracts.
type Synthesizer struct {
	gen    llm.Generator
	logger zerolog.Logger
}

// NewSynthesizer creates a Synthesizer backed by the given generator.
func NewSynthesizer(gen llm.Generator, logger zerolog.Logger) *Synthesizer {
	return &Synthesizer{
		gen:    gen,
		logger: logger.With().Str("component", "synthesizer").Logger(),
	}
}

// Synthesize answers a question using the successful records of a session.
// With no successful records it short-circuits with a fixed answer instead
// of calling the provider.
func (s *Synthesizer) Synthesize(ctx context.Context, session domain.Session, question, subjectName string) (*SynthesisResult, error) {
	valid := session.Successful()
	if len(valid) == 0 {
		return &SynthesisResult{
			Answer:       "No extracted data available. Please run extraction first.",
			ExtractsUsed: 0,
			Model:        s.gen.Model(),
		}, nil
	}

	prompt := BuildSynthesisPrompt(valid, question, subjectName)
	tokens := estimateTokens(prompt)

	s.logger.Info().
		Int("extracts", len(valid)).
		Int("estimated_tokens", tokens).
		Msg("synthesizing from extracts")

	answer, err := s.gen.Generate(ctx, llm.GenerateRequest{
		Prompt:       prompt,
		SystemPrompt: synthesisSystemPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis via %s failed: %w", s.gen.Provider(), err)
	}

	return &SynthesisResult{
		Answer:          answer,
		ExtractsUsed:    len(valid),
		Model:           s.gen.Model(),
		EstimatedTokens: tokens,
	}, nil
}

// Analyze answers a question directly over raw abstracts. This is the
// degraded path: larger prompts, no per-paper structure, but no dependency
// on a prior extraction run.
func (s *Synthesizer) Analyze(ctx context.Context, works []domain.WorkItem, question, subjectName string) (*AnalysisResult, error) {
	withAbstracts := make([]domain.WorkItem, 0, len(works))
	for i := range works {
		if works[i].HasAbstract() {
			withAbstracts = append(withAbstracts, works[i])
		}
	}

	if len(withAbstracts) == 0 {
		return &AnalysisResult{
			Answer:        "No abstracts available to analyze.",
			WorksAnalyzed: 0,
			TotalWorks:    len(works),
			Model:         s.gen.Model(),
		}, nil
	}

	prompt := BuildAnalysisPrompt(withAbstracts, question, subjectName)
	tokens := estimateTokens(prompt)

	s.logger.Info().
		Int("works", len(withAbstracts)).
		Int("estimated_tokens", tokens).
		Msg("analyzing raw abstracts")

	answer, err := s.gen.Generate(ctx, llm.GenerateRequest{
		Prompt:       prompt,
		SystemPrompt: synthesisSystemPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("analysis via %s failed: %w", s.gen.Provider(), err)
	}

	return &AnalysisResult{
		Answer:          answer,
		WorksAnalyzed:   len(withAbstracts),
		TotalWorks:      len(works),
		Model:           s.gen.Model(),
		EstimatedTokens: tokens,
	}, nil
}
