// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestClaude_Complete(t *testing.T) {
	var got claudeRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"{\"score\":"},{"type":"text","text":"4}"}]}`))
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	c := &Claude{APIKey: "test-key", Model: "test-model", Client: ts.Client()}
	text, err := c.Complete(context.Background(), Request{Prompt: "rate", Format: Structured})
	require.NoError(t, err)

	assert.Equal(t, `{"score":4}`, text)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 4096, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.True(t, strings.HasSuffix(got.Messages[0].Content, structuredSuffix))
}

func TestClaude_ServerErrorIsUnavailable(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	c := &Claude{APIKey: "k", Model: "m", MaxRetries: 1, Client: ts.Client()}
	_, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAI_Complete(t *testing.T) {
	tests := []struct {
		name       string
		format     Format
		wantFormat bool
	}{
		{"free text", FreeText, false},
		{"structured uses json mode", Structured, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got chatRequest
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer gsk", r.Header.Get("Authorization"))
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
			}))
			defer ts.Close()

			c := &OpenAI{APIKey: "gsk", Model: "m", BaseURL: ts.URL + "/v1/", Client: ts.Client()}
			text, err := c.Complete(context.Background(), Request{Prompt: "hi", Format: tt.format})
			require.NoError(t, err)

			assert.Equal(t, "hello", text)
			if tt.wantFormat {
				require.NotNil(t, got.ResponseFormat)
				assert.Equal(t, "json_object", got.ResponseFormat.Type)
			} else {
				assert.Nil(t, got.ResponseFormat)
			}
		})
	}
}

func TestOpenAI_ClientErrorIsNotTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer ts.Close()

	c := &OpenAI{APIKey: "bad", Model: "m", BaseURL: ts.URL, Client: ts.Client()}
	_, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "401")
}

func TestOpenAI_NoChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer ts.Close()

	c := &OpenAI{APIKey: "k", Model: "m", BaseURL: ts.URL, Client: ts.Client()}
	_, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGeminiError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"unauthenticated", genai.APIError{Code: 401, Status: "UNAUTHENTICATED", Message: "API key not valid"}, false},
		{"invalid argument", genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}, false},
		{"rate limited", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, true},
		{"internal", genai.APIError{Code: 500, Status: "INTERNAL"}, true},
		{"wrapped unavailable", fmt.Errorf("call: %w", genai.APIError{Code: 503}), true},
		{"network failure", errors.New("doRequest: error sending request: connection refused"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := geminiError(tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.transient, errors.Is(err, ErrUnavailable), err.Error())
		})
	}
}

func TestGemini_ClientErrorIsNotTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":401,"message":"API key not valid","status":"UNAUTHENTICATED"}}`))
	}))
	defer ts.Close()

	old := geminiBaseURL
	geminiBaseURL = ts.URL
	defer func() { geminiBaseURL = old }()

	g, err := NewGemini(context.Background(), "bad", "gemini-test", 0)
	require.NoError(t, err)
	_, err = g.Complete(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "401")
}
