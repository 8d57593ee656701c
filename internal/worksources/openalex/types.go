// Package openalex provides a client for the OpenAlex REST API.
//
// OpenAlex is an open bibliographic catalog of scholarly works, authors, and
// institutions. This package implements author resolution and works retrieval
// with cursor pagination, and reconstructs abstracts from OpenAlex's inverted
// index representation.
//
// The API documentation is available at https://docs.openalex.org/.
package openalex

// AuthorRecord represents an author entity returned by the /authors endpoints.
type AuthorRecord struct {
	ID           string        `json:"id"`
	DisplayName  string        `json:"display_name"`
	ORCID        string        `json:"orcid"`
	WorksCount   int           `json:"works_count"`
	CitedByCount int           `json:"cited_by_count"`
	Affiliations []Affiliation `json:"affiliations"`
}

// Affiliation is one institutional affiliation on an author record.
type Affiliation struct {
	Institution Institution `json:"institution"`
	Years       []int       `json:"years"`
}

// Institution identifies an institution on an affiliation.
type Institution struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// AuthorsResponse is the envelope for author list endpoints.
type AuthorsResponse struct {
	Meta    Meta           `json:"meta"`
	Results []AuthorRecord `json:"results"`
}

// Meta carries result counts and the cursor for paginated endpoints.
type Meta struct {
	Count      int    `json:"count"`
	PerPage    int    `json:"per_page"`
	NextCursor string `json:"next_cursor"`
}

// WorksResponse is the envelope for the /works endpoint.
type WorksResponse struct {
	Meta    Meta   `json:"meta"`
	Results []Work `json:"results"`
}

// Work represents a scholarly work returned by the /works endpoint.
type Work struct {
	ID                    string           `json:"id"`
	DOI                   string           `json:"doi"`
	Title                 string           `json:"title"`
	DisplayName           string           `json:"display_name"`
	PublicationYear       int              `json:"publication_year"`
	PublicationDate       string           `json:"publication_date"`
	Type                  string           `json:"type"`
	CitedByCount          int              `json:"cited_by_count"`
	IDs                   WorkIDs          `json:"ids"`
	PrimaryLocation       *Location        `json:"primary_location"`
	OpenAccess            *OpenAccess      `json:"open_access"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

// WorkIDs contains the external identifiers for a work.
type WorkIDs struct {
	OpenAlex string `json:"openalex"`
	DOI      string `json:"doi"`
	PMID     string `json:"pmid"`
	PMCID    string `json:"pmcid"`
}

// Location describes where a work is hosted.
type Location struct {
	Source *LocationSource `json:"source"`
	PDFURL string          `json:"pdf_url"`
}

// LocationSource identifies the journal or repository hosting a work.
type LocationSource struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// OpenAccess describes a work's open access status.
type OpenAccess struct {
	IsOA  bool   `json:"is_oa"`
	OAURL string `json:"oa_url"`
}
