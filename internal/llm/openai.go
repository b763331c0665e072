// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/deep-researcher/internal/httputil"
)

const (
	// GroqBaseURL is the OpenAI-compatible endpoint of Groq.
	GroqBaseURL = "https://api.groq.com/openai/v1"

	// OpenAIBaseURL is the OpenAI API endpoint.
	OpenAIBaseURL = "https://api.openai.com/v1"

	DefaultGroqModel   = "deepseek-r1-distill-llama-70b"
	DefaultOpenAIModel = "gpt-4o-mini"
)

// OpenAI calls an OpenAI-compatible chat completions endpoint. Groq, OpenAI
// and most self-hosted gateways speak this protocol.
type OpenAI struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxTokens  int
	MaxRetries int
	UserAgent  string
	Client     *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends one prompt as a single user message. Structured requests
// switch the endpoint into JSON object mode.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model:     o.Model,
		Messages:  []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens: o.MaxTokens,
	}
	if req.Format == Structured {
		// JSON mode requires the word "JSON" somewhere in the prompt.
		body.Messages[0].Content += structuredSuffix
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimRight(o.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.APIKey)
	if o.UserAgent != "" {
		httpReq.Header.Set("User-Agent", o.UserAgent)
	}

	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, httpReq, o.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("%w: calling chat completions: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", statusError("chat completions", resp.StatusCode, data)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("%w: decoding chat response: %v", ErrUnavailable, err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("%w: chat response has no choices", ErrUnavailable)
	}
	return cr.Choices[0].Message.Content, nil
}
