package openalex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drumstick90/authordigest/internal/domain"
	"github.com/drumstick90/authordigest/internal/worksources"
)

// newTestClient creates a client configured for testing with the given server URL.
func newTestClient(serverURL string) *Client {
	cfg := Config{
		BaseURL:   serverURL,
		Email:     "test@example.com",
		Timeout:   5 * time.Second,
		RateLimit: 100, // High rate for testing
		BurstSize: 100,
	}

	httpClient := worksources.NewHTTPClient(worksources.HTTPClientConfig{
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		UserAgent:  "TestClient/1.0",
	})

	return NewWithHTTPClient(cfg, httpClient)
}

// sampleAuthorRecord returns a sample OpenAlex author record for testing.
func sampleAuthorRecord() AuthorRecord {
	return AuthorRecord{
		ID:           "https://openalex.org/A5023888391",
		DisplayName:  "Jane Smith",
		ORCID:        "https://orcid.org/0000-0002-1825-0097",
		WorksCount:   142,
		CitedByCount: 8700,
		Affiliations: []Affiliation{
			{Institution: Institution{ID: "https://openalex.org/I123", DisplayName: "Stanford University"}},
			{Institution: Institution{ID: "https://openalex.org/I456", DisplayName: "Broad Institute"}},
		},
	}
}

func TestIsAuthorID(t *testing.T) {
	t.Parallel()

	assert.True(t, IsAuthorID("A5023888391"))
	assert.True(t, IsAuthorID("  A1  "))
	assert.False(t, IsAuthorID("W2741809807"))
	assert.False(t, IsAuthorID("A5023888391x"))
	assert.False(t, IsAuthorID("Jane Smith"))
	assert.False(t, IsAuthorID(""))
}

func TestIsORCID(t *testing.T) {
	t.Parallel()

	assert.True(t, IsORCID("0000-0002-1825-0097"))
	assert.True(t, IsORCID("0000-0002-1825-009X"))
	assert.False(t, IsORCID("0000-0002-1825"))
	assert.False(t, IsORCID("https://orcid.org/0000-0002-1825-0097"))
	assert.False(t, IsORCID("Jane Smith"))
}

func TestResolveAuthor_ByID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/authors/A5023888391", r.URL.Path)
		assert.Equal(t, "test@example.com", r.URL.Query().Get("mailto"))
		require.NoError(t, json.NewEncoder(w).Encode(sampleAuthorRecord()))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	author, err := client.ResolveAuthor(context.Background(), "A5023888391", "")
	require.NoError(t, err)

	assert.Equal(t, "A5023888391", author.ID)
	assert.Equal(t, "Jane Smith", author.DisplayName)
	assert.Equal(t, "0000-0002-1825-0097", author.ORCID)
	assert.Equal(t, 142, author.WorksCount)
	assert.Equal(t, []string{"Stanford University", "Broad Institute"}, author.Affiliations)
}

func TestResolveAuthor_ByORCID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/authors", r.URL.Path)
		assert.Equal(t, "orcid:0000-0002-1825-0097", r.URL.Query().Get("filter"))
		resp := AuthorsResponse{
			Meta:    Meta{Count: 1},
			Results: []AuthorRecord{sampleAuthorRecord()},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	author, err := client.ResolveAuthor(context.Background(), "0000-0002-1825-0097", "")
	require.NoError(t, err)
	assert.Equal(t, "A5023888391", author.ID)
}

func TestResolveAuthor_ByORCID_NotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(AuthorsResponse{}))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.ResolveAuthor(context.Background(), "0000-0002-1825-0097", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestResolveAuthor_ByName_TopCandidate(t *testing.T) {
	t.Parallel()

	prolific := sampleAuthorRecord()
	other := AuthorRecord{
		ID:          "https://openalex.org/A111",
		DisplayName: "Jane Smith",
		WorksCount:  3,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/authors", r.URL.Path)
		assert.Equal(t, "Jane Smith", r.URL.Query().Get("search"))
		resp := AuthorsResponse{
			Meta:    Meta{Count: 2},
			Results: []AuthorRecord{other, prolific},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	author, err := client.ResolveAuthor(context.Background(), "Jane Smith", "")
	require.NoError(t, err)

	// Most prolific candidate wins without an affiliation hint.
	assert.Equal(t, "A5023888391", author.ID)
}

func TestResolveAuthor_EmptyIdentifier(t *testing.T) {
	t.Parallel()

	client := newTestClient("http://127.0.0.1:1")
	_, err := client.ResolveAuthor(context.Background(), "   ", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestListCandidates_AffiliationHintFirst(t *testing.T) {
	t.Parallel()

	prolific := sampleAuthorRecord() // Stanford, 142 works
	matching := AuthorRecord{
		ID:          "https://openalex.org/A222",
		DisplayName: "Jane Smith",
		WorksCount:  12,
		Affiliations: []Affiliation{
			{Institution: Institution{DisplayName: "University of Oslo"}},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := AuthorsResponse{
			Meta:    Meta{Count: 2},
			Results: []AuthorRecord{prolific, matching},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	candidates, err := client.ListCandidates(context.Background(), "Jane Smith", "oslo")
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	// The lower-output candidate with a matching affiliation ranks first.
	assert.Equal(t, "A222", candidates[0].ID)
	assert.Equal(t, "A5023888391", candidates[1].ID)
}

func TestFetchWorks_CursorPagination(t *testing.T) {
	t.Parallel()

	page1 := WorksResponse{
		Meta: Meta{Count: 3, NextCursor: "cursor-2"},
		Results: []Work{
			{
				ID:              "https://openalex.org/W1",
				DOI:             "https://doi.org/10.1038/NATURE12373",
				Title:           "First work",
				PublicationYear: 2020,
				PublicationDate: "2020-03-01",
				Type:            "article",
				CitedByCount:    50,
				IDs:             WorkIDs{PMID: "https://pubmed.ncbi.nlm.nih.gov/24906146"},
				AbstractInvertedIndex: map[string][]int{
					"Genome": {0},
					"editing": {1},
					"works.": {2},
				},
			},
			{
				ID:              "https://openalex.org/W2",
				Title:           "Second work",
				PublicationYear: 2018,
			},
		},
	}
	page2 := WorksResponse{
		Meta: Meta{Count: 3, NextCursor: ""},
		Results: []Work{
			{
				ID:              "https://openalex.org/W3",
				Title:           "Third work",
				PublicationYear: 2021,
			},
		},
	}

	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/works", r.URL.Path)
		assert.Equal(t, "author.id:A5023888391", r.URL.Query().Get("filter"))
		assert.Equal(t, "200", r.URL.Query().Get("per-page"))

		switch r.URL.Query().Get("cursor") {
		case "*":
			require.NoError(t, json.NewEncoder(w).Encode(page1))
		case "cursor-2":
			require.NoError(t, json.NewEncoder(w).Encode(page2))
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	works, err := client.FetchWorks(context.Background(), "A5023888391", worksources.FetchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, requests)
	require.Len(t, works, 3)

	assert.Equal(t, "W1", works[0].ID)
	assert.Equal(t, "10.1038/nature12373", works[0].DOI)
	assert.Equal(t, "24906146", works[0].PMID)
	assert.Equal(t, "Genome editing works.", works[0].Abstract)
	assert.Equal(t, "openalex", works[0].AbstractSource)

	assert.Equal(t, "W2", works[1].ID)
	assert.False(t, works[1].HasAbstract())
	assert.Empty(t, works[1].AbstractSource)
}

func TestFetchWorks_YearFilters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		opts       worksources.FetchOptions
		wantFilter string
	}{
		{
			name:       "range",
			opts:       worksources.FetchOptions{YearFrom: 2010, YearTo: 2020},
			wantFilter: "author.id:A1,publication_year:2010-2020",
		},
		{
			name:       "from only",
			opts:       worksources.FetchOptions{YearFrom: 2015},
			wantFilter: "author.id:A1,publication_year:>2014",
		},
		{
			name:       "to only",
			opts:       worksources.FetchOptions{YearTo: 2015},
			wantFilter: "author.id:A1,publication_year:<2016",
		},
		{
			name:       "work types",
			opts:       worksources.FetchOptions{WorkTypes: []string{"article", "book"}},
			wantFilter: "author.id:A1,type:article|book",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.wantFilter, r.URL.Query().Get("filter"))
				require.NoError(t, json.NewEncoder(w).Encode(WorksResponse{}))
			}))
			defer server.Close()

			client := newTestClient(server.URL)
			_, err := client.FetchWorks(context.Background(), "A1", tt.opts)
			require.NoError(t, err)
		})
	}
}

func TestCountWorks(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("per-page"))
		require.NoError(t, json.NewEncoder(w).Encode(WorksResponse{Meta: Meta{Count: 142}}))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	count, err := client.CountWorks(context.Background(), "A5023888391")
	require.NoError(t, err)
	assert.Equal(t, 142, count)
}

func TestGetJSON_ServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": "forbidden"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.CountWorks(context.Background(), "A1")
	require.Error(t, err)

	var apiErr *domain.ExternalAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestReconstructAbstract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		index map[string][]int
		want  string
	}{
		{
			name: "basic reconstruction",
			index: map[string][]int{
				"This":  {0},
				"is":    {1, 4},
				"a":     {2},
				"study": {3},
			},
			want: "This is a study is",
		},
		{
			name:  "empty index",
			index: map[string][]int{},
			want:  "",
		},
		{
			name:  "nil index",
			index: nil,
			want:  "",
		},
		{
			name: "single word",
			index: map[string][]int{
				"Abstract.": {0},
			},
			want: "Abstract.",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ReconstructAbstract(tt.index))
		})
	}
}

func TestNormalizers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "A5023888391", normalizeAuthorID("https://openalex.org/A5023888391"))
	assert.Equal(t, "W123", normalizeWorkID("https://openalex.org/W123"))
	assert.Equal(t, "10.1038/nature12373", normalizeDOI("https://doi.org/10.1038/NATURE12373"))
	assert.Equal(t, "10.1/x", normalizeDOI("doi:10.1/x"))
	assert.Equal(t, "24906146", normalizePMID("https://pubmed.ncbi.nlm.nih.gov/24906146/"))
	assert.Equal(t, "0000-0002-1825-0097", normalizeORCID("https://orcid.org/0000-0002-1825-0097"))
	assert.Empty(t, normalizeDOI(""))
}
