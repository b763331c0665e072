// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm abstracts the text-completion service. Backends implement Client;
// CompleteJSON layers schema validation on top so callers never see
// unvalidated structured output.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/pdiddy/deep-researcher/pkg/types"
)

var (
	// ErrUnavailable reports a transport failure, timeout, rate limit or
	// server-side error. Callers treat it as transient.
	ErrUnavailable = errors.New("completion service unavailable")

	// ErrMalformed reports structured output that is not valid JSON or that
	// fails validation.
	ErrMalformed = errors.New("completion output malformed")
)

// Format selects free text or schema-constrained JSON output.
type Format int

const (
	FreeText Format = iota
	Structured
)

// Request is one completion call.
type Request struct {
	Prompt string
	Format Format
}

// Client sends a prompt to a completion backend and returns the generated text.
// With Format Structured the backend is asked for a JSON document; the text is
// returned undecoded.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Validator is implemented by structured response types. Validate runs after
// decoding and rejects documents that are well-formed JSON but do not satisfy
// the schema.
type Validator interface {
	Validate() error
}

// CompleteJSON asks c for a JSON document, decodes it into out and validates
// it. Decoding and validation failures wrap ErrMalformed; transport failures
// are returned as-is.
func CompleteJSON(ctx context.Context, c Client, prompt string, out Validator) error {
	text, err := c.Complete(ctx, Request{Prompt: prompt, Format: Structured})
	if err != nil {
		return err
	}
	return DecodeJSON(text, out)
}

// DecodeJSON extracts the JSON document from model output, decodes it into
// out and validates it.
func DecodeJSON(text string, out Validator) error {
	doc := ExtractJSON(text)
	if doc == "" {
		return fmt.Errorf("%w: no JSON document in response", ErrMalformed)
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := out.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

var (
	thinkPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)
	fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
)

// StripThinking removes <think>...</think> blocks that reasoning models emit
// ahead of their answer, and trims the result.
func StripThinking(text string) string {
	return strings.TrimSpace(thinkPattern.ReplaceAllString(text, ""))
}

// ExtractJSON returns the JSON object or array embedded in model output.
// Reasoning blocks and Markdown code fences are removed first; surrounding
// prose is cut at the outermost braces or brackets.
func ExtractJSON(text string) string {
	text = StripThinking(text)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end < start {
		return ""
	}
	return text[start : end+1]
}

// statusError builds the error for a non-2xx provider response. Rate limits and
// server errors are transient; other client errors are not.
func statusError(provider string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	if status == http.StatusTooManyRequests || status >= 500 {
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnavailable, provider, status, msg)
	}
	return fmt.Errorf("%s returned %d: %s", provider, status, msg)
}

// New builds the client selected by cfg.Provider.
func New(ctx context.Context, cfg types.CompletionConfig) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("no API key configured for completion provider %q", cfg.Provider)
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Provider {
	case types.ProviderGroq, "":
		return &OpenAI{
			APIKey: cfg.APIKey, Model: defaultString(cfg.Model, DefaultGroqModel),
			BaseURL: defaultString(cfg.BaseURL, GroqBaseURL), MaxTokens: cfg.MaxTokens,
			MaxRetries: cfg.MaxRetries, UserAgent: cfg.UserAgent, Client: httpClient,
		}, nil
	case types.ProviderOpenAI:
		return &OpenAI{
			APIKey: cfg.APIKey, Model: defaultString(cfg.Model, DefaultOpenAIModel),
			BaseURL: defaultString(cfg.BaseURL, OpenAIBaseURL), MaxTokens: cfg.MaxTokens,
			MaxRetries: cfg.MaxRetries, UserAgent: cfg.UserAgent, Client: httpClient,
		}, nil
	case types.ProviderAnthropic:
		return &Claude{
			APIKey: cfg.APIKey, Model: defaultString(cfg.Model, DefaultClaudeModel),
			MaxTokens: cfg.MaxTokens, MaxRetries: cfg.MaxRetries, Client: httpClient,
		}, nil
	case types.ProviderGemini:
		return NewGemini(ctx, cfg.APIKey, defaultString(cfg.Model, DefaultGeminiModel), cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unsupported completion provider %q: use groq, openai, anthropic, or gemini", cfg.Provider)
	}
}

func defaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
