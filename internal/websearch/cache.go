// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package websearch

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pdiddy/deep-researcher/pkg/types"
)

// Cached keeps recent successful search responses in an LRU cache. Concurrent
// runs researching overlapping claims reuse each other's searches. Errors are
// never cached.
type Cached struct {
	next  Client
	cache *lru.Cache[string, []types.SearchResult]
}

// NewCached wraps next with a cache of size entries.
func NewCached(next Client, size int) (*Cached, error) {
	cache, err := lru.New[string, []types.SearchResult](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache}, nil
}

// Search returns a cached response or delegates to the wrapped client.
func (c *Cached) Search(ctx context.Context, query string, depth types.SearchDepth) ([]types.SearchResult, error) {
	key := cacheKey(query, depth)
	if results, ok := c.cache.Get(key); ok {
		return append([]types.SearchResult(nil), results...), nil
	}
	results, err := c.next.Search(ctx, query, depth)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, append([]types.SearchResult(nil), results...))
	return results, nil
}

// Len returns the number of cached responses.
func (c *Cached) Len() int {
	return c.cache.Len()
}

func cacheKey(query string, depth types.SearchDepth) string {
	return string(depth) + "\x00" + strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
