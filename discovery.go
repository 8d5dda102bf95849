package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
)

// DiscoveryResult is what a URLDiscoverer produces for one query.
type DiscoveryResult struct {
	URLs          []CandidateURL
	SearchQueries []string
}

// URLDiscoverer turns the user query into search queries and candidate URLs.
type URLDiscoverer interface {
	Discover(ctx context.Context, query string, maxURLs int) (DiscoveryResult, error)
}

// SearchClient discovers candidate URLs through an external search service
// speaking a simple JSON API: GET /search?q=...&limit=N.
type SearchClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewSearchClient(baseURL string, requestsPerSecond int) *SearchClient {
	return &SearchClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

type searchResponse struct {
	Results []struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"results"`
}

// Discover expands the query into a handful of search phrasings, fans each
// through the search service, and merges candidates preserving provenance.
// Duplicate URLs keep their first-seen search query.
func (c *SearchClient) Discover(ctx context.Context, query string, maxURLs int) (DiscoveryResult, error) {
	queries := ExpandSearchQueries(query)

	result := DiscoveryResult{SearchQueries: queries}
	seen := make(map[string]bool)

	for _, q := range queries {
		if len(result.URLs) >= maxURLs*3 {
			break
		}
		urls, err := c.search(ctx, q, maxURLs)
		if err != nil {
			// One failed phrasing is not fatal; later phrasings may land.
			continue
		}
		for _, u := range urls {
			if seen[u] {
				continue
			}
			seen[u] = true
			result.URLs = append(result.URLs, CandidateURL{URL: u, SearchQuery: q})
		}
	}

	if len(result.URLs) == 0 {
		return result, errors.Wrapf(ErrDiscoveryFailed, "query %q", query)
	}
	return result, nil
}

func (c *SearchClient) search(ctx context.Context, query string, limit int) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&limit=%d", c.baseURL, url.QueryEscape(query), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "searching %q", query)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: endpoint}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(err, "parsing search response")
	}

	urls := make([]string, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	return urls, nil
}

// ExpandSearchQueries derives a few search phrasings from the raw query so a
// single poorly-phrased query does not starve discovery.
func ExpandSearchQueries(query string) []string {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil
	}
	queries := []string{trimmed}
	lower := strings.ToLower(trimmed)
	if !strings.Contains(lower, "list") {
		queries = append(queries, trimmed+" list")
	}
	if !strings.Contains(lower, "data") {
		queries = append(queries, trimmed+" data")
	}
	return queries
}
