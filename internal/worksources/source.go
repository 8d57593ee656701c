package worksources

import (
	"context"

	"github.com/drumstick90/authordigest/internal/domain"
)

// FetchOptions narrows which works are fetched for an author.
type FetchOptions struct {
	// YearFrom is the minimum publication year (inclusive). Zero means no bound.
	YearFrom int
	// YearTo is the maximum publication year (inclusive). Zero means no bound.
	YearTo int
	// WorkTypes restricts results to the given work types (e.g., "article").
	WorkTypes []string
}

// AuthorSource resolves author identifiers and fetches their works from a
// bibliographic database.
type AuthorSource interface {
	// ResolveAuthor resolves an identifier (OpenAlex ID, ORCID, or name) to a
	// single author record. Name searches use affiliationHint to disambiguate
	// and return the top candidate. Returns domain.NotFoundError when nothing
	// matches.
	ResolveAuthor(ctx context.Context, identifier, affiliationHint string) (*domain.Author, error)

	// ListCandidates returns candidate authors for a name search, ordered with
	// affiliation matches first and then by descending works count.
	ListCandidates(ctx context.Context, name, affiliationHint string) ([]domain.Author, error)

	// FetchWorks fetches all works for the given author ID using cursor
	// pagination, applying the given filters.
	FetchWorks(ctx context.Context, authorID string, opts FetchOptions) ([]domain.WorkItem, error)

	// CountWorks returns the total number of works for an author without
	// fetching them.
	CountWorks(ctx context.Context, authorID string) (int, error)
}

// AbstractRef carries the identifiers available for locating a work's
// abstract in a fallback source.
type AbstractRef struct {
	// PMID is the PubMed ID, possibly as a URL or prefixed form.
	PMID string
	// DOI is the DOI, possibly with a URL prefix.
	DOI string
	// Title is the work title, used as a last resort.
	Title string
}

// AbstractSource fetches abstracts for works that the primary source is
// missing them for.
type AbstractSource interface {
	// FetchAbstract tries the ref's identifiers in order of reliability and
	// returns the abstract text and the method that found it ("pmid", "doi",
	// or "title"). Returns domain.ErrNotFound when no identifier yields an
	// abstract.
	FetchAbstract(ctx context.Context, ref AbstractRef) (text string, method string, err error)
}
