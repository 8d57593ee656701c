// Package domain defines the core types shared across the author digest service.
package domain

import "sort"

// Author represents a resolved author from the bibliographic source.
type Author struct {
	// ID is the short-form OpenAlex author ID (e.g., "A5023888391").
	ID string `json:"id"`
	// DisplayName is the author's display name.
	DisplayName string `json:"display_name"`
	// ORCID is the author's ORCID identifier, if known.
	ORCID string `json:"orcid,omitempty"`
	// WorksCount is the number of works attributed to the author.
	WorksCount int `json:"works_count"`
	// CitedByCount is the author's total citation count.
	CitedByCount int `json:"cited_by_count"`
	// Affiliations lists the author's institutional affiliations (up to three).
	Affiliations []string `json:"affiliations,omitempty"`
}

// WorkItem is one publication record, the unit of extraction.
// A WorkItem is immutable once fetched; it is owned by the caller for the
// duration of a run.
type WorkItem struct {
	// ID is the short-form OpenAlex work ID (e.g., "W2741809807").
	// It is opaque to the pipeline and unique within a run.
	ID string `json:"openalex_id"`
	// DOI is the bare DOI without URL prefix, if known.
	DOI string `json:"doi,omitempty"`
	// PMID is the bare PubMed ID, if known.
	PMID string `json:"pmid,omitempty"`
	// Title is the work's title.
	Title string `json:"title"`
	// PublicationYear is the publication year; zero means unknown.
	PublicationYear int `json:"publication_year,omitempty"`
	// PublicationDate is the full publication date (YYYY-MM-DD), if known.
	PublicationDate string `json:"publication_date,omitempty"`
	// Type is the work type reported by the source (article, book, ...).
	Type string `json:"type,omitempty"`
	// CitedByCount is the work's citation count.
	CitedByCount int `json:"cited_by_count"`
	// Abstract is the abstract text. An empty abstract makes the work
	// ineligible for extraction.
	Abstract string `json:"abstract,omitempty"`
	// AbstractSource records where the abstract came from: "openalex",
	// "pubmed_pmid", "pubmed_doi", "pubmed_title", or empty if missing.
	AbstractSource string `json:"abstract_source,omitempty"`
}

// HasAbstract reports whether the work carries a non-empty abstract and is
// therefore eligible for extraction.
func (w *WorkItem) HasAbstract() bool {
	return w.Abstract != ""
}

// CountWithAbstracts returns how many of the given works have an abstract.
func CountWithAbstracts(works []WorkItem) int {
	n := 0
	for i := range works {
		if works[i].HasAbstract() {
			n++
		}
	}
	return n
}

// SortWorksByYearDesc sorts works newest-first, stable on ties.
func SortWorksByYearDesc(works []WorkItem) {
	sort.SliceStable(works, func(i, j int) bool {
		return works[i].PublicationYear > works[j].PublicationYear
	})
}
