package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/drumstick90/authordigest/internal/domain"
	"github.com/drumstick90/authordigest/internal/llm"
)

// Request body limits. Stored works can run to thousands of records with
// full abstracts, so the store endpoint gets a larger cap.
const (
	maxRequestBodySize      = 1 << 20  // 1 MB
	maxStoreRequestBodySize = 32 << 20 // 32 MB
)

// aiOverrides carries the per-request provider selection shared by the
// extract, synthesize, and analyze endpoints.
type aiOverrides struct {
	Provider string `json:"provider,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	Model    string `json:"model,omitempty"`
}

// generator builds a Generator from per-request overrides on top of the
// server configuration.
func (s *Server) generator(ov aiOverrides) (llm.Generator, error) {
	return llm.NewGenerator(s.llmCfg, llm.GeneratorOverrides{
		Provider: ov.Provider,
		Model:    ov.Model,
		APIKey:   ov.APIKey,
	})
}

// decodeJSON reads and decodes a JSON request body with a size cap.
func decodeJSON(r *http.Request, limit int64, dst any) error {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, limit))
	if err != nil {
		return domain.NewValidationError("body", "failed to read request body")
	}
	if len(body) == 0 {
		return domain.NewValidationError("body", "request body is required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return domain.NewValidationError("body", "invalid JSON request body")
	}
	return nil
}

// storeWorksRequest is the JSON request body for loading a subject's works.
type storeWorksRequest struct {
	Works      []domain.WorkItem `json:"works" validate:"required,min=1"`
	AuthorName string            `json:"author_name"`
	AuthorID   string            `json:"author_id"`
}

// storeWorks handles POST /api/v1/digest/store.
func (s *Server) storeWorks(w http.ResponseWriter, r *http.Request) {
	var req storeWorksRequest
	if err := decodeJSON(r, maxStoreRequestBodySize, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "works is required and must not be empty")
		return
	}

	res := s.digest.StoreWorks(req.Works, req.AuthorName, req.AuthorID)
	writeJSON(w, http.StatusOK, res)
}

// startExtractionRequest is the JSON request body for starting extraction.
type startExtractionRequest struct {
	SessionID  string `json:"session_id,omitempty"`
	MaxWorkers int    `json:"max_workers,omitempty"`
	RPM        int    `json:"rpm,omitempty"`
	aiOverrides
}

// startExtractionResponse acknowledges an accepted extraction run.
type startExtractionResponse struct {
	Status        string `json:"status"`
	SessionID     string `json:"session_id"`
	TotalWorks    int    `json:"total_works"`
	WithAbstracts int    `json:"with_abstracts"`
}

// startExtraction handles POST /api/v1/digest/extract. The run proceeds in
// the background; progress is available on the SSE stream for the session.
func (s *Server) startExtraction(w http.ResponseWriter, r *http.Request) {
	var req startExtractionRequest
	if err := decodeJSON(r, maxRequestBodySize, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	gen, err := s.generator(req.aiOverrides)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The run outlives this request; detach it from the request context.
	start, err := s.digest.StartExtraction(context.Background(), req.SessionID, gen, req.MaxWorkers, req.RPM)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, startExtractionResponse{
		Status:        "started",
		SessionID:     start.SessionID,
		TotalWorks:    start.TotalWorks,
		WithAbstracts: start.WithAbstracts,
	})
}

// questionRequest is the shared JSON request body for synthesize and analyze.
type questionRequest struct {
	Question string `json:"question" validate:"required"`
	UseCache *bool  `json:"use_cache,omitempty"`
	aiOverrides
}

// synthesize handles POST /api/v1/digest/synthesize.
func (s *Server) synthesize(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decodeJSON(r, maxRequestBodySize, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	gen, err := s.generator(req.aiOverrides)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.digest.Synthesize(r.Context(), gen, req.Question)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"question":         req.Question,
		"answer":           res.Answer,
		"extracts_used":    res.ExtractsUsed,
		"model":            res.Model,
		"estimated_tokens": res.EstimatedTokens,
	})
}

// analyze handles POST /api/v1/digest/analyze. With use_cache (the default)
// it answers from cached extracts when available and falls back to direct
// analysis over raw abstracts otherwise.
func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decodeJSON(r, maxRequestBodySize, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	useCache := req.UseCache == nil || *req.UseCache

	gen, err := s.generator(req.aiOverrides)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	syn, direct, err := s.digest.Analyze(r.Context(), gen, req.Question, useCache)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if syn != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"question":         req.Question,
			"source":           "cached_extracts",
			"answer":           syn.Answer,
			"extracts_used":    syn.ExtractsUsed,
			"model":            syn.Model,
			"estimated_tokens": syn.EstimatedTokens,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"question":         req.Question,
		"source":           "direct_abstracts",
		"answer":           direct.Answer,
		"works_analyzed":   direct.WorksAnalyzed,
		"total_works":      direct.TotalWorks,
		"model":            direct.Model,
		"estimated_tokens": direct.EstimatedTokens,
	})
}

// digestStatus handles GET /api/v1/digest/status.
func (s *Server) digestStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.digest.Status())
}

// getExtracts handles GET /api/v1/digest/extracts.
func (s *Server) getExtracts(w http.ResponseWriter, _ *http.Request) {
	session, summary, err := s.digest.Extracts()
	if err != nil {
		writeError(w, http.StatusNotFound, "no cached extracts available")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"extracts":   session,
		"count":      len(session),
		"successful": session.SuccessCount(),
		"summary":    summary,
	})
}

// clearDigest handles POST /api/v1/digest/clear.
func (s *Server) clearDigest(w http.ResponseWriter, _ *http.Request) {
	s.digest.Clear()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Cleared works and extracts",
	})
}
