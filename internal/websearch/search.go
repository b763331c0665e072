// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package websearch queries the web search service and formats its snippets
// for prompts.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/deep-researcher/pkg/types"
)

// ErrUnavailable reports a transport failure, timeout, rate limit or
// server-side error from the search service. Callers treat it as transient.
var ErrUnavailable = errors.New("search service unavailable")

// Client searches the web. An empty result slice is a valid response.
type Client interface {
	Search(ctx context.Context, query string, depth types.SearchDepth) ([]types.SearchResult, error)
}

// FormatResults renders results as Source/Title/Content blocks separated by
// blank lines. Missing fields are rendered with placeholders.
func FormatResults(results []types.SearchResult) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("Source: %s\nTitle: %s\nContent: %s",
			orDefault(r.URL, "Unknown"),
			orDefault(r.Title, "No title"),
			orDefault(r.Content, "No content"))
	}
	return strings.Join(blocks, "\n\n")
}

// URLs returns the non-empty URLs of results in order.
func URLs(results []types.SearchResult) []string {
	urls := make([]string, 0, len(results))
	for _, r := range results {
		if u := strings.TrimSpace(r.URL); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
