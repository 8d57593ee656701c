package pubmed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/drumstick90/authordigest/internal/domain"
	"github.com/drumstick90/authordigest/internal/worksources"
)

const (
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the rate limit without an API key (3 requests/second).
	// With an API key, the limit increases to 10 requests/second.
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// titleSearchRetMax is how many esearch hits to request for a title
	// search; the result is used only when exactly one hit comes back.
	titleSearchRetMax = 5

	// minTitleLength is the shortest title worth searching; shorter titles
	// produce too many false positives.
	minTitleLength = 10

	// maxTitleLength truncates very long titles before the search.
	maxTitleLength = 200

	// sourceName is the human-readable name for this source.
	sourceName = "PubMed"
)

var (
	// pmidDigitsPattern extracts the numeric PMID from URLs and prefixed forms.
	pmidDigitsPattern = regexp.MustCompile(`(\d{6,9})`)

	// titleBracketsPattern strips brackets that break the quoted title query.
	titleBracketsPattern = regexp.MustCompile(`[\[\]{}()]`)
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits.
	// Optional but recommended for production use.
	APIKey string

	// Email is the contact email sent with requests, per NCBI guidelines.
	Email string

	// Timeout is the request timeout.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to DefaultRateLimit (3 req/sec) if zero.
	// With an API key, you can increase this to 10 req/sec.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to DefaultBurstSize if zero.
	BurstSize int
}

// applyDefaults applies default values to the config.
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

// Client implements the worksources.AbstractSource interface for PubMed.
type Client struct {
	config     Config
	httpClient *worksources.HTTPClient
}

// Compile-time check that Client implements AbstractSource.
var _ worksources.AbstractSource = (*Client)(nil)

// New creates a new PubMed client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpCfg := worksources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: "AuthorDigest/1.0 (mailto:" + cfg.Email + ")",
	}

	return &Client{
		config:     cfg,
		httpClient: worksources.NewHTTPClient(httpCfg),
	}
}

// NewWithHTTPClient creates a new PubMed client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *worksources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// FetchAbstract tries the ref's identifiers in order of reliability:
// PMID, then DOI, then title. A title search is honored only when it matches
// exactly one record, to avoid false positives. Returns the abstract text and
// the method that found it, or domain.ErrNotFound when every identifier comes
// up empty.
func (c *Client) FetchAbstract(ctx context.Context, ref worksources.AbstractRef) (string, string, error) {
	if pmid := CleanPMID(ref.PMID); pmid != "" {
		text, err := c.fetchByPMID(ctx, pmid)
		if err != nil {
			return "", "", err
		}
		if text != "" {
			return text, "pmid", nil
		}
	}

	if doi := CleanDOI(ref.DOI); doi != "" {
		text, err := c.fetchByDOI(ctx, doi)
		if err != nil {
			return "", "", err
		}
		if text != "" {
			return text, "doi", nil
		}
	}

	if title := cleanTitle(ref.Title); title != "" {
		text, err := c.fetchByTitle(ctx, title)
		if err != nil {
			return "", "", err
		}
		if text != "" {
			return text, "title", nil
		}
	}

	return "", "", domain.NewNotFoundError("abstract", abstractRefLabel(ref))
}

// fetchByPMID retrieves a single article by PMID and extracts its abstract.
// Returns empty text when the record exists but carries no abstract.
func (c *Client) fetchByPMID(ctx context.Context, pmid string) (string, error) {
	articles, err := c.efetch(ctx, pmid)
	if err != nil {
		return "", err
	}
	if len(articles.Articles) == 0 {
		return "", nil
	}
	return joinAbstract(articles.Articles[0].MedlineCitation.Article.Abstract), nil
}

// fetchByDOI searches for the PMID matching a DOI and fetches its abstract.
func (c *Client) fetchByDOI(ctx context.Context, doi string) (string, error) {
	result, err := c.esearch(ctx, doi+"[DOI]", 1)
	if err != nil {
		return "", err
	}
	if len(result.IDList.IDs) == 0 {
		return "", nil
	}
	return c.fetchByPMID(ctx, result.IDList.IDs[0])
}

// fetchByTitle searches for the exact title and fetches the abstract only
// when the search matches a single record.
func (c *Client) fetchByTitle(ctx context.Context, title string) (string, error) {
	result, err := c.esearch(ctx, `"`+title+`"[Title]`, titleSearchRetMax)
	if err != nil {
		return "", err
	}
	if len(result.IDList.IDs) != 1 {
		return "", nil
	}
	return c.fetchByPMID(ctx, result.IDList.IDs[0])
}

// esearch performs a search query and returns matching PMIDs.
func (c *Client) esearch(ctx context.Context, term string, retMax int) (*ESearchResult, error) {
	u, err := url.Parse(c.config.BaseURL + "/esearch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("term", term)
	q.Set("retmode", "xml")
	q.Set("retmax", fmt.Sprintf("%d", retMax))
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	if c.config.Email != "" {
		q.Set("email", c.config.Email)
	}
	u.RawQuery = q.Encode()

	var result ESearchResult
	if err := c.getXML(ctx, u.String(), &result); err != nil {
		return nil, fmt.Errorf("esearch failed: %w", err)
	}
	return &result, nil
}

// efetch retrieves full article metadata for the given PMID.
func (c *Client) efetch(ctx context.Context, pmid string) (*PubmedArticleSet, error) {
	u, err := url.Parse(c.config.BaseURL + "/efetch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("id", pmid)
	q.Set("retmode", "xml")
	q.Set("rettype", "abstract")
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	if c.config.Email != "" {
		q.Set("email", c.config.Email)
	}
	u.RawQuery = q.Encode()

	var result PubmedArticleSet
	if err := c.getXML(ctx, u.String(), &result); err != nil {
		return nil, fmt.Errorf("efetch failed: %w", err)
	}
	return &result, nil
}

// getXML executes a GET request and decodes the XML response into out.
func (c *Client) getXML(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := xml.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse XML response: %w", err)
	}
	return nil
}

// CleanPMID extracts the bare numeric PMID from URLs and prefixed forms like
// "https://pubmed.ncbi.nlm.nih.gov/12345678/" or "pmid:12345678".
// Returns empty when no 6-9 digit run is present.
func CleanPMID(pmid string) string {
	pmid = strings.TrimSpace(pmid)
	if pmid == "" {
		return ""
	}
	if match := pmidDigitsPattern.FindString(pmid); match != "" {
		return match
	}
	return ""
}

// CleanDOI strips URL prefixes from a DOI, leaving the bare identifier.
func CleanDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return ""
	}
	doi = strings.TrimPrefix(doi, "https://doi.org/")
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return doi
}

// cleanTitle prepares a title for a quoted [Title] search: brackets removed,
// double quotes replaced, truncated, and rejected when too short to be a
// reliable match.
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	title = titleBracketsPattern.ReplaceAllString(title, "")
	title = strings.ReplaceAll(title, `"`, "'")
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}
	if len(title) < minTitleLength {
		return ""
	}
	return title
}

// joinAbstract concatenates abstract sections into a single string, keeping
// section labels for structured abstracts.
func joinAbstract(abstract *Abstract) string {
	if abstract == nil || len(abstract.AbstractTexts) == 0 {
		return ""
	}

	// If only one section without label, return it directly
	if len(abstract.AbstractTexts) == 1 && abstract.AbstractTexts[0].Label == "" {
		return strings.TrimSpace(abstract.AbstractTexts[0].Value)
	}

	// Concatenate multiple sections with labels
	var parts []string
	for _, at := range abstract.AbstractTexts {
		text := strings.TrimSpace(at.Value)
		if text == "" {
			continue
		}
		if at.Label != "" {
			parts = append(parts, at.Label+": "+text)
		} else {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " ")
}

// abstractRefLabel builds a short identifier string for error messages.
func abstractRefLabel(ref worksources.AbstractRef) string {
	switch {
	case ref.PMID != "":
		return "pmid:" + ref.PMID
	case ref.DOI != "":
		return "doi:" + ref.DOI
	case ref.Title != "":
		if len(ref.Title) > 40 {
			return "title:" + ref.Title[:40]
		}
		return "title:" + ref.Title
	default:
		return "unknown"
	}
}
