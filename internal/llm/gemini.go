// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured for the gemini provider.
const DefaultGeminiModel = "gemini-2.5-flash"

// geminiBaseURL overrides the API endpoint. Tests point it at an httptest server.
var geminiBaseURL = ""

// Gemini is a thin wrapper around the official genai client.
type Gemini struct {
	cli       *genai.Client
	model     string
	maxTokens int32
}

// NewGemini creates a Gemini client for the Gemini API backend.
func NewGemini(ctx context.Context, apiKey, model string, maxTokens int) (*Gemini, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: geminiBaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Gemini{cli: cli, model: model, maxTokens: int32(maxTokens)}, nil
}

// Complete generates content for a single text prompt. Structured requests ask
// for application/json output.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if g.maxTokens > 0 {
		cfg.MaxOutputTokens = g.maxTokens
	}
	if req.Format == Structured {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: req.Prompt}}}},
		cfg,
	)
	if err != nil {
		return "", geminiError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: gemini returned no candidates", ErrUnavailable)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}

// geminiError classifies a genai failure the way statusError classifies HTTP
// responses. Errors without a status (network, timeouts) are transient.
func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return statusError("gemini", apiErr.Code, []byte(strings.TrimSpace(apiErr.Status+" "+apiErr.Message)))
	}
	return fmt.Errorf("%w: gemini generate: %v", ErrUnavailable, err)
}
