package httpserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/drumstick90/authordigest/internal/domain"
	"github.com/drumstick90/authordigest/internal/worksources"
)

// abstractStats counts abstracts by origin for a fetched batch of works.
type abstractStats struct {
	OpenAlex int `json:"openalex"`
	PubMed   int `json:"pubmed"`
	None     int `json:"none"`
}

// authorWorksResponse is the payload for GET /authors/{authorID}/works.
type authorWorksResponse struct {
	Author        *domain.Author    `json:"author"`
	Works         []domain.WorkItem `json:"works"`
	TotalWorks    int               `json:"total_works"`
	AbstractStats abstractStats     `json:"abstract_stats"`
	Stored        bool              `json:"stored"`
}

// resolveAuthor handles GET /api/v1/authors/resolve?q=&hint=.
// q may be an OpenAlex author ID, an ORCID, or a name.
func (s *Server) resolveAuthor(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	hint := strings.TrimSpace(r.URL.Query().Get("hint"))

	author, err := s.authors.ResolveAuthor(r.Context(), q, hint)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"author": author})
}

// listCandidates handles GET /api/v1/authors/candidates?q=&hint=.
// It returns the disambiguation list for a name search.
func (s *Server) listCandidates(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	hint := strings.TrimSpace(r.URL.Query().Get("hint"))

	candidates, err := s.authors.ListCandidates(r.Context(), q, hint)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":      q,
		"candidates": candidates,
	})
}

// getAuthorWorks handles GET /api/v1/authors/{authorID}/works.
// It fetches the author's full publication list, optionally recovers
// missing abstracts from the fallback source, and loads the result as the
// current subject so an extraction run can follow immediately.
//
// Query params: year_from, year_to, types (comma separated),
// pubmed_fallback=true to enable the fallback pass.
func (s *Server) getAuthorWorks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authorID := chi.URLParam(r, "authorID")

	author, err := s.authors.ResolveAuthor(ctx, authorID, "")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	opts, err := parseFetchOptions(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	works, err := s.authors.FetchWorks(ctx, author.ID, opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if s.filler != nil && r.URL.Query().Get("pubmed_fallback") == "true" {
		recovered, ferr := s.filler.Fill(ctx, works)
		if ferr != nil {
			writeDomainError(w, ferr)
			return
		}
		s.logger.Info().
			Int("recovered", recovered).
			Str("author_id", author.ID).
			Msg("abstract fallback pass finished")
	}

	s.digest.StoreWorks(works, author.DisplayName, author.ID)

	writeJSON(w, http.StatusOK, authorWorksResponse{
		Author:        author,
		Works:         works,
		TotalWorks:    len(works),
		AbstractStats: countAbstractStats(works),
		Stored:        true,
	})
}

// parseFetchOptions reads the optional work filters from query parameters.
func parseFetchOptions(r *http.Request) (worksources.FetchOptions, error) {
	var opts worksources.FetchOptions

	if v := r.URL.Query().Get("year_from"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			return opts, domain.NewValidationError("year_from", "must be an integer year")
		}
		opts.YearFrom = year
	}
	if v := r.URL.Query().Get("year_to"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			return opts, domain.NewValidationError("year_to", "must be an integer year")
		}
		opts.YearTo = year
	}
	if opts.YearFrom > 0 && opts.YearTo > 0 && opts.YearFrom > opts.YearTo {
		return opts, domain.NewValidationError("year_from", "must not be greater than year_to")
	}
	if v := r.URL.Query().Get("types"); v != "" {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				opts.WorkTypes = append(opts.WorkTypes, t)
			}
		}
	}

	return opts, nil
}

// countAbstractStats tallies works by abstract origin.
func countAbstractStats(works []domain.WorkItem) abstractStats {
	var stats abstractStats
	for i := range works {
		switch {
		case works[i].AbstractSource == "openalex":
			stats.OpenAlex++
		case strings.HasPrefix(works[i].AbstractSource, "pubmed"):
			stats.PubMed++
		default:
			stats.None++
		}
	}
	return stats
}
