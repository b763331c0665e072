// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/deep-researcher/internal/httputil"
	"github.com/pdiddy/deep-researcher/pkg/types"
)

// tavilyURL is the Tavily search endpoint. Package-level var for test substitution.
var tavilyURL = "https://api.tavily.com/search"

const defaultMaxResults = 5

// Tavily calls the Tavily search API. Basic depth maps to Tavily's "basic"
// search and deep depth to "advanced".
type Tavily struct {
	APIKey          string
	BasicMaxResults int
	DeepMaxResults  int
	MaxRetries      int
	UserAgent       string
	Client          *http.Client
}

// NewTavily constructs a Tavily client from cfg.
func NewTavily(cfg types.SearchConfig) *Tavily {
	return &Tavily{
		APIKey:          cfg.APIKey,
		BasicMaxResults: cfg.BasicMaxResults,
		DeepMaxResults:  cfg.DeepMaxResults,
		MaxRetries:      cfg.MaxRetries,
		UserAgent:       cfg.UserAgent,
		Client:          &http.Client{Timeout: cfg.Timeout},
	}
}

type tavilyRequest struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search posts a query to Tavily.
func (t *Tavily) Search(ctx context.Context, query string, depth types.SearchDepth) ([]types.SearchResult, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}

	body := tavilyRequest{Query: query, SearchDepth: "basic", MaxResults: t.BasicMaxResults}
	if depth == types.DepthDeep {
		body.SearchDepth = "advanced"
		body.MaxResults = t.DeepMaxResults
	}
	if body.MaxResults <= 0 {
		body.MaxResults = defaultMaxResults
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilyURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, t.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("%w: tavily: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: tavily http %d", ErrUnavailable, resp.StatusCode)
		}
		return nil, fmt.Errorf("tavily http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var tr tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%w: decoding tavily response: %v", ErrUnavailable, err)
	}

	results := make([]types.SearchResult, 0, len(tr.Results))
	for _, r := range tr.Results {
		results = append(results, types.SearchResult{URL: r.URL, Title: r.Title, Content: r.Content})
		if len(results) >= body.MaxResults {
			break
		}
	}
	return results, nil
}
