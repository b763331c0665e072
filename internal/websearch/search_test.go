// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/deep-researcher/internal/httputil"
	"github.com/pdiddy/deep-researcher/pkg/types"
)

func TestMain(m *testing.M) {
	httputil.RetryBaseDelay = time.Millisecond
	os.Exit(m.Run())
}

func TestFormatResults(t *testing.T) {
	out := FormatResults([]types.SearchResult{
		{URL: "https://a.example", Title: "A", Content: "alpha"},
		{Content: "orphan"},
	})
	want := "Source: https://a.example\nTitle: A\nContent: alpha\n\n" +
		"Source: Unknown\nTitle: No title\nContent: orphan"
	assert.Equal(t, want, out)
	assert.Equal(t, "", FormatResults(nil))
}

func TestURLs(t *testing.T) {
	got := URLs([]types.SearchResult{{URL: " https://a "}, {URL: ""}, {URL: "https://b"}})
	assert.Equal(t, []string{"https://a", "https://b"}, got)
}

func tavilyServer(t *testing.T, status int, body string, got *tavilyRequest) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	old := tavilyURL
	tavilyURL = ts.URL
	t.Cleanup(func() {
		tavilyURL = old
		ts.Close()
	})
	return ts
}

func TestTavily_Search(t *testing.T) {
	var got tavilyRequest
	ts := tavilyServer(t, http.StatusOK, `{"results":[
		{"title":"T1","url":"https://one","content":"c1"},
		{"title":"T2","url":"https://two","content":"c2"},
		{"title":"T3","url":"https://three","content":"c3"}]}`, &got)

	tv := &Tavily{APIKey: "tvly", DeepMaxResults: 2, Client: ts.Client()}
	results, err := tv.Search(context.Background(), "claim text", types.DepthDeep)
	require.NoError(t, err)

	assert.Equal(t, "advanced", got.SearchDepth)
	assert.Equal(t, 2, got.MaxResults)
	assert.Equal(t, "claim text", got.Query)
	require.Len(t, results, 2)
	assert.Equal(t, types.SearchResult{URL: "https://one", Title: "T1", Content: "c1"}, results[0])
}

func TestTavily_BasicDepthDefaults(t *testing.T) {
	var got tavilyRequest
	ts := tavilyServer(t, http.StatusOK, `{"results":[]}`, &got)

	tv := &Tavily{APIKey: "tvly", Client: ts.Client()}
	results, err := tv.Search(context.Background(), "q", types.DepthBasic)
	require.NoError(t, err)

	assert.Empty(t, results)
	assert.Equal(t, "basic", got.SearchDepth)
	assert.Equal(t, defaultMaxResults, got.MaxResults)
}

func TestTavily_Errors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		_, err := (&Tavily{}).Search(context.Background(), "q", types.DepthBasic)
		assert.Error(t, err)
	})

	t.Run("server error is unavailable", func(t *testing.T) {
		ts := tavilyServer(t, http.StatusBadGateway, "", nil)
		tv := &Tavily{APIKey: "k", MaxRetries: 1, Client: ts.Client()}
		_, err := tv.Search(context.Background(), "q", types.DepthBasic)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("bad request is not transient", func(t *testing.T) {
		ts := tavilyServer(t, http.StatusBadRequest, `{"detail":"bad"}`, nil)
		tv := &Tavily{APIKey: "k", Client: ts.Client()}
		_, err := tv.Search(context.Background(), "q", types.DepthBasic)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	})
}

type countingClient struct {
	calls   int
	results []types.SearchResult
	err     error
}

func (c *countingClient) Search(_ context.Context, _ string, _ types.SearchDepth) ([]types.SearchResult, error) {
	c.calls++
	return c.results, c.err
}

func TestCached(t *testing.T) {
	next := &countingClient{results: []types.SearchResult{{URL: "https://a"}}}
	c, err := NewCached(next, 8)
	require.NoError(t, err)

	ctx := context.Background()
	r1, err := c.Search(ctx, "Remote  Work", types.DepthBasic)
	require.NoError(t, err)
	r2, err := c.Search(ctx, "remote work", types.DepthBasic)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, next.calls)

	_, err = c.Search(ctx, "remote work", types.DepthDeep)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls, "depth is part of the key")
	assert.Equal(t, 2, c.Len())
}

func TestCached_ErrorsNotCached(t *testing.T) {
	next := &countingClient{err: errors.New("boom")}
	c, err := NewCached(next, 8)
	require.NoError(t, err)

	_, err = c.Search(context.Background(), "q", types.DepthBasic)
	assert.Error(t, err)
	_, err = c.Search(context.Background(), "q", types.DepthBasic)
	assert.Error(t, err)
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, 0, c.Len())
}
