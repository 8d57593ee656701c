package digest

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drumstick90/authordigest/internal/domain"
	"github.com/drumstick90/authordigest/internal/llm"
)

func TestSynthesize(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{model: "test-model", fn: func(int, llm.GenerateRequest) (string, error) {
		return "The author focuses on androgen signaling.", nil
	}}
	s := NewSynthesizer(gen, zerolog.Nop())

	session := domain.Session{
		{WorkID: "W1", Title: "Paper one", Year: 2022, Extracted: true, Theme: "androgen signaling"},
		{WorkID: "W2", Title: "Failed paper", Extracted: false, Error: "boom"},
	}

	res, err := s.Synthesize(context.Background(), session, "What is the focus?", "Jane Doe")
	require.NoError(t, err)

	assert.Equal(t, "The author focuses on androgen signaling.", res.Answer)
	assert.Equal(t, 1, res.ExtractsUsed)
	assert.Equal(t, "test-model", res.Model)
	assert.Positive(t, res.EstimatedTokens)

	require.Len(t, gen.requests, 1)
	req := gen.requests[0]
	assert.Equal(t, synthesisSystemPrompt, req.SystemPrompt)
	assert.Contains(t, req.Prompt, "Author: Jane Doe")
	assert.Contains(t, req.Prompt, "Total publications analyzed: 1")
	assert.NotContains(t, req.Prompt, "Failed paper")
	assert.False(t, req.JSONMode)
}

func TestSynthesize_NoSuccessfulExtracts(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fn: func(int, llm.GenerateRequest) (string, error) {
		t.Fatal("generator should not be called")
		return "", nil
	}}
	s := NewSynthesizer(gen, zerolog.Nop())

	res, err := s.Synthesize(context.Background(), domain.Session{
		{WorkID: "W1", Extracted: false, Error: "boom"},
	}, "q", "Jane Doe")
	require.NoError(t, err)

	assert.Equal(t, "No extracted data available. Please run extraction first.", res.Answer)
	assert.Zero(t, res.ExtractsUsed)
}

func TestSynthesize_ProviderError(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{provider: "openai", fn: func(int, llm.GenerateRequest) (string, error) {
		return "", &llm.APIError{Provider: "openai", StatusCode: 500, Message: "server error"}
	}}
	s := NewSynthesizer(gen, zerolog.Nop())

	_, err := s.Synthesize(context.Background(), domain.Session{
		{WorkID: "W1", Extracted: true},
	}, "q", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synthesis via openai failed")
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{model: "test-model", fn: func(int, llm.GenerateRequest) (string, error) {
		return "Direct analysis answer.", nil
	}}
	s := NewSynthesizer(gen, zerolog.Nop())

	works := []domain.WorkItem{
		{ID: "W1", Title: "With abstract", PublicationYear: 2020, Abstract: "abstract text"},
		{ID: "W2", Title: "Without abstract", PublicationYear: 2021},
	}

	res, err := s.Analyze(context.Background(), works, "Summarize.", "Jane Doe")
	require.NoError(t, err)

	assert.Equal(t, "Direct analysis answer.", res.Answer)
	assert.Equal(t, 1, res.WorksAnalyzed)
	assert.Equal(t, 2, res.TotalWorks)
	assert.Equal(t, "test-model", res.Model)

	require.Len(t, gen.requests, 1)
	assert.Equal(t, synthesisSystemPrompt, gen.requests[0].SystemPrompt)
	assert.Contains(t, gen.requests[0].Prompt, "=== ALL ABSTRACTS ===")
	assert.NotContains(t, gen.requests[0].Prompt, "Without abstract")
}

func TestAnalyze_NoAbstracts(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fn: func(int, llm.GenerateRequest) (string, error) {
		t.Fatal("generator should not be called")
		return "", nil
	}}
	s := NewSynthesizer(gen, zerolog.Nop())

	res, err := s.Analyze(context.Background(), []domain.WorkItem{{ID: "W1", Title: "bare"}}, "q", "")
	require.NoError(t, err)

	assert.Equal(t, "No abstracts available to analyze.", res.Answer)
	assert.Zero(t, res.WorksAnalyzed)
	assert.Equal(t, 1, res.TotalWorks)
}
