package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/drumstick90/authordigest/internal/domain"
	"github.com/drumstick90/authordigest/internal/worksources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	// OpenAlex polite pool (with email) allows higher rates.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// worksPerPage is the page size for cursor pagination, the API maximum.
	worksPerPage = 200

	// candidatesPerPage is the page size for author name searches.
	candidatesPerPage = 10

	// doiPrefix is the URL prefix that OpenAlex uses for DOIs.
	doiPrefix = "https://doi.org/"

	// openAlexIDPrefix is the URL prefix for OpenAlex IDs.
	openAlexIDPrefix = "https://openalex.org/"
)

var (
	// openAlexAuthorIDPattern matches short-form author IDs like A5023888391.
	openAlexAuthorIDPattern = regexp.MustCompile(`^A\d+$`)

	// orcidPattern matches bare ORCID identifiers like 0000-0002-1825-0097.
	orcidPattern = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}-\d{3}[\dX]$`)
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	// Defaults to https://api.openalex.org
	BaseURL string

	// Email is the contact email for the polite pool.
	// Providing an email grants access to higher rate limits.
	// See: https://docs.openalex.org/how-to-use-the-api/rate-limits-and-authentication
	Email string

	// Timeout is the request timeout.
	// Defaults to 30 seconds.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to 10 req/sec (polite pool with email gets higher).
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to 10.
	BurstSize int
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
}

// Client implements the worksources.AuthorSource interface for OpenAlex.
type Client struct {
	config     Config
	httpClient *worksources.HTTPClient
}

// Ensure Client implements AuthorSource interface.
var _ worksources.AuthorSource = (*Client)(nil)

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := worksources.NewHTTPClient(worksources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: "AuthorDigest/1.0 (mailto:" + cfg.Email + ")",
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new OpenAlex client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *worksources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// IsAuthorID reports whether the identifier is a short-form OpenAlex author ID.
func IsAuthorID(identifier string) bool {
	return openAlexAuthorIDPattern.MatchString(strings.TrimSpace(identifier))
}

// IsORCID reports whether the identifier is a bare ORCID.
func IsORCID(identifier string) bool {
	return orcidPattern.MatchString(strings.TrimSpace(identifier))
}

// ResolveAuthor resolves an identifier to a single author record. OpenAlex
// IDs and ORCIDs resolve directly; anything else is treated as a name search
// and the top-ranked candidate is returned.
func (c *Client) ResolveAuthor(ctx context.Context, identifier, affiliationHint string) (*domain.Author, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, domain.NewValidationError("identifier", "must not be empty")
	}

	if IsAuthorID(identifier) {
		return c.getAuthorByID(ctx, identifier)
	}

	if IsORCID(identifier) {
		return c.getAuthorByORCID(ctx, identifier)
	}

	candidates, err := c.ListCandidates(ctx, identifier, affiliationHint)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, domain.NewNotFoundError("author", identifier)
	}
	return &candidates[0], nil
}

// ListCandidates searches authors by name and returns candidates ordered with
// affiliation matches first (when a hint is given), then by descending works
// count.
func (c *Client) ListCandidates(ctx context.Context, name, affiliationHint string) ([]domain.Author, error) {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	u.Path = "/authors"

	query := url.Values{}
	query.Set("search", name)
	query.Set("per-page", strconv.Itoa(candidatesPerPage))
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}
	u.RawQuery = query.Encode()

	var resp AuthorsResponse
	if err := c.getJSON(ctx, u.String(), &resp); err != nil {
		return nil, err
	}

	records := resp.Results
	hint := strings.ToLower(strings.TrimSpace(affiliationHint))
	sort.SliceStable(records, func(i, j int) bool {
		if hint != "" {
			mi, mj := matchesAffiliation(&records[i], hint), matchesAffiliation(&records[j], hint)
			if mi != mj {
				return mi
			}
		}
		return records[i].WorksCount > records[j].WorksCount
	})

	authors := make([]domain.Author, 0, len(records))
	for i := range records {
		authors = append(authors, recordToAuthor(&records[i]))
	}
	return authors, nil
}

// FetchWorks fetches all works for the given author using cursor pagination.
func (c *Client) FetchWorks(ctx context.Context, authorID string, opts worksources.FetchOptions) ([]domain.WorkItem, error) {
	var works []domain.WorkItem

	cursor := "*"
	for cursor != "" {
		u, err := c.buildWorksURL(authorID, opts, cursor)
		if err != nil {
			return nil, err
		}

		var resp WorksResponse
		if err := c.getJSON(ctx, u, &resp); err != nil {
			return nil, err
		}

		if works == nil {
			works = make([]domain.WorkItem, 0, resp.Meta.Count)
		}
		for i := range resp.Results {
			works = append(works, workToItem(&resp.Results[i]))
		}

		cursor = resp.Meta.NextCursor
		if len(resp.Results) == 0 {
			break
		}
	}

	return works, nil
}

// CountWorks returns the total works count for an author without fetching
// the works themselves.
func (c *Client) CountWorks(ctx context.Context, authorID string) (int, error) {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return 0, fmt.Errorf("parsing base URL: %w", err)
	}
	u.Path = "/works"

	query := url.Values{}
	query.Set("filter", "author.id:"+normalizeAuthorID(authorID))
	query.Set("per-page", "1")
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}
	u.RawQuery = query.Encode()

	var resp WorksResponse
	if err := c.getJSON(ctx, u.String(), &resp); err != nil {
		return 0, err
	}
	return resp.Meta.Count, nil
}

// getAuthorByID fetches an author by short-form OpenAlex ID.
func (c *Client) getAuthorByID(ctx context.Context, authorID string) (*domain.Author, error) {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	u.Path = "/authors/" + authorID
	if c.config.Email != "" {
		query := url.Values{}
		query.Set("mailto", c.config.Email)
		u.RawQuery = query.Encode()
	}

	var record AuthorRecord
	if err := c.getJSON(ctx, u.String(), &record); err != nil {
		return nil, err
	}

	author := recordToAuthor(&record)
	return &author, nil
}

// getAuthorByORCID fetches an author by ORCID via the filter endpoint.
func (c *Client) getAuthorByORCID(ctx context.Context, orcid string) (*domain.Author, error) {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	u.Path = "/authors"

	query := url.Values{}
	query.Set("filter", "orcid:"+orcid)
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}
	u.RawQuery = query.Encode()

	var resp AuthorsResponse
	if err := c.getJSON(ctx, u.String(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, domain.NewNotFoundError("author", orcid)
	}

	author := recordToAuthor(&resp.Results[0])
	return &author, nil
}

// buildWorksURL constructs the /works URL for one page of an author's works.
func (c *Client) buildWorksURL(authorID string, opts worksources.FetchOptions, cursor string) (string, error) {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	u.Path = "/works"

	filters := []string{"author.id:" + normalizeAuthorID(authorID)}
	switch {
	case opts.YearFrom > 0 && opts.YearTo > 0:
		filters = append(filters, fmt.Sprintf("publication_year:%d-%d", opts.YearFrom, opts.YearTo))
	case opts.YearFrom > 0:
		filters = append(filters, fmt.Sprintf("publication_year:>%d", opts.YearFrom-1))
	case opts.YearTo > 0:
		filters = append(filters, fmt.Sprintf("publication_year:<%d", opts.YearTo+1))
	}
	if len(opts.WorkTypes) > 0 {
		filters = append(filters, "type:"+strings.Join(opts.WorkTypes, "|"))
	}

	query := url.Values{}
	query.Set("filter", strings.Join(filters, ","))
	query.Set("per-page", strconv.Itoa(worksPerPage))
	query.Set("cursor", cursor)
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// getJSON executes a GET request and decodes the JSON response into out.
// Response bodies are limited to 10MB to prevent resource exhaustion.
func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.NewNotFoundError("resource", rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return domain.NewExternalAPIError("OpenAlex", resp.StatusCode, string(body), nil)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// matchesAffiliation reports whether any of the author's affiliations contain
// the lowercase hint.
func matchesAffiliation(record *AuthorRecord, hint string) bool {
	for _, aff := range record.Affiliations {
		if strings.Contains(strings.ToLower(aff.Institution.DisplayName), hint) {
			return true
		}
	}
	return false
}

// recordToAuthor converts an OpenAlex author record to a domain Author.
func recordToAuthor(record *AuthorRecord) domain.Author {
	affiliations := make([]string, 0, 3)
	for _, aff := range record.Affiliations {
		if aff.Institution.DisplayName == "" {
			continue
		}
		affiliations = append(affiliations, aff.Institution.DisplayName)
		if len(affiliations) == 3 {
			break
		}
	}

	return domain.Author{
		ID:           normalizeAuthorID(record.ID),
		DisplayName:  record.DisplayName,
		ORCID:        normalizeORCID(record.ORCID),
		WorksCount:   record.WorksCount,
		CitedByCount: record.CitedByCount,
		Affiliations: affiliations,
	}
}

// workToItem converts an OpenAlex work to a domain WorkItem, reconstructing
// the abstract from the inverted index.
func workToItem(work *Work) domain.WorkItem {
	title := work.DisplayName
	if title == "" {
		title = work.Title
	}

	doi := normalizeDOI(work.DOI)
	if doi == "" {
		doi = normalizeDOI(work.IDs.DOI)
	}

	item := domain.WorkItem{
		ID:              normalizeWorkID(work.ID),
		DOI:             doi,
		PMID:            normalizePMID(work.IDs.PMID),
		Title:           title,
		PublicationYear: work.PublicationYear,
		PublicationDate: work.PublicationDate,
		Type:            work.Type,
		CitedByCount:    work.CitedByCount,
	}

	if abstract := ReconstructAbstract(work.AbstractInvertedIndex); abstract != "" {
		item.Abstract = abstract
		item.AbstractSource = "openalex"
	}

	return item
}

// normalizeAuthorID extracts the short ID from full OpenAlex author URLs.
func normalizeAuthorID(id string) string {
	id = strings.TrimPrefix(strings.TrimSpace(id), openAlexIDPrefix)
	return id
}

// normalizeWorkID extracts the short ID from full OpenAlex work URLs.
func normalizeWorkID(id string) string {
	id = strings.TrimPrefix(strings.TrimSpace(id), openAlexIDPrefix)
	return id
}

// normalizeDOI strips the https://doi.org/ prefix from DOIs and returns lowercase.
func normalizeDOI(doi string) string {
	if doi == "" {
		return ""
	}
	// Trim whitespace first
	doi = strings.TrimSpace(doi)
	// Strip the URL prefix if present
	doi = strings.TrimPrefix(doi, doiPrefix)
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return strings.ToLower(strings.TrimSpace(doi))
}

// normalizePMID strips any URL prefixes from PubMed IDs.
func normalizePMID(pmid string) string {
	if pmid == "" {
		return ""
	}
	pmid = strings.TrimPrefix(pmid, "https://pubmed.ncbi.nlm.nih.gov/")
	return strings.Trim(strings.TrimSpace(pmid), "/")
}

// normalizeORCID strips any URL prefixes from ORCID identifiers.
func normalizeORCID(orcid string) string {
	if orcid == "" {
		return ""
	}
	orcid = strings.TrimPrefix(orcid, "https://orcid.org/")
	return strings.TrimSpace(orcid)
}

// ReconstructAbstract reconstructs the abstract text from OpenAlex's inverted
// index format. OpenAlex stores abstracts as inverted indices mapping words
// to their positions.
func ReconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	// Build a slice of (position, word) pairs.
	// Pre-calculate total capacity by summing all position slice lengths.
	type posWord struct {
		pos  int
		word string
	}
	const maxAbstractWords = 100_000
	totalPairs := 0
	for _, positions := range invertedIndex {
		totalPairs += len(positions)
	}
	// Guard against malicious payloads with excessive position entries.
	if totalPairs > maxAbstractWords {
		return ""
	}
	pairs := make([]posWord, 0, totalPairs)

	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	// Sort by position
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	// Reconstruct the text with pre-sized builder to reduce allocations.
	// Estimate average word length of 6 characters plus a space separator.
	var builder strings.Builder
	builder.Grow(totalPairs * 7)
	for i, pair := range pairs {
		if i > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(pair.word)
	}

	return builder.String()
}
