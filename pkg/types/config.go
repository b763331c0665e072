// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by adapters that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP client timeout. Per-call deadlines from the retry
	// policy usually fire first.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "deep-researcher/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// MaxRetries bounds transport-level retries on HTTP 429 and 5xx (default 2).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// CompletionProvider identifies a text-completion backend.
type CompletionProvider string

const (
	ProviderGroq      CompletionProvider = "groq"
	ProviderOpenAI    CompletionProvider = "openai"
	ProviderAnthropic CompletionProvider = "anthropic"
	ProviderGemini    CompletionProvider = "gemini"
)

// CompletionConfig holds settings for the text-completion client.
type CompletionConfig struct {
	HTTPConfig `yaml:",inline"`

	// Provider selects the backend: groq, openai, anthropic, or gemini.
	Provider CompletionProvider `json:"provider" yaml:"provider"`

	// Model is the model identifier (e.g. "deepseek-r1-distill-llama-70b").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL overrides the provider endpoint (OpenAI-compatible providers only).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// MaxTokens caps the length of each completion.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
}

// SearchConfig holds settings for the web search client.
type SearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// APIKey is the Tavily API key.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BasicMaxResults caps results for general research searches (default 5).
	BasicMaxResults int `json:"basic_max_results" yaml:"basic_max_results"`

	// DeepMaxResults caps results for claim verification searches (default 5).
	DeepMaxResults int `json:"deep_max_results" yaml:"deep_max_results"`

	// CacheSize is the number of search responses kept in memory; 0 disables caching.
	CacheSize int `json:"cache_size" yaml:"cache_size"`
}

// RetryConfig bounds retries around each external call site.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts per call, including the first.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// BaseDelay is the first backoff delay; it doubles on every retry.
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`

	// MaxDelay caps a single backoff delay.
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`

	// CallTimeout bounds each individual attempt.
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout"`
}

// PipelineConfig groups the tunables of the research pipeline.
type PipelineConfig struct {
	Retry RetryConfig `json:"retry" yaml:"retry"`

	// MinClaims and MaxClaims bound the number of extracted claims. Fewer than
	// MinClaims valid claims yields no claims at all.
	MinClaims int `json:"min_claims" yaml:"min_claims"`
	MaxClaims int `json:"max_claims" yaml:"max_claims"`

	// MaxConcurrency bounds concurrent claim verifications.
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency"`

	// Retention is how long terminal runs stay queryable in memory.
	Retention time.Duration `json:"retention" yaml:"retention"`
}

// Config is the full application configuration.
type Config struct {
	Completion CompletionConfig `json:"completion" yaml:"completion"`
	Search     SearchConfig     `json:"search" yaml:"search"`
	Pipeline   PipelineConfig   `json:"pipeline" yaml:"pipeline"`

	// ArchivePath is the SQLite file finished runs are saved to; empty disables archiving.
	ArchivePath string `json:"archive_path" yaml:"archive_path"`
}

// DefaultPipelineConfig returns the pipeline defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    8 * time.Second,
			CallTimeout: 60 * time.Second,
		},
		MinClaims:      3,
		MaxClaims:      5,
		MaxConcurrency: 3,
		Retention:      24 * time.Hour,
	}
}

// WithDefaults fills zero fields of c from DefaultPipelineConfig.
func (c PipelineConfig) WithDefaults() PipelineConfig {
	d := DefaultPipelineConfig()
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = d.Retry.MaxAttempts
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = d.Retry.BaseDelay
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = d.Retry.MaxDelay
	}
	if c.Retry.CallTimeout <= 0 {
		c.Retry.CallTimeout = d.Retry.CallTimeout
	}
	if c.MinClaims <= 0 {
		c.MinClaims = d.MinClaims
	}
	if c.MaxClaims < c.MinClaims {
		c.MaxClaims = max(d.MaxClaims, c.MinClaims)
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = d.MaxConcurrency
	}
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	return c
}
