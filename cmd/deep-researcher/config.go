// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/deep-researcher/pkg/types"
)

const defaultArchivePath = "deep-researcher.db"

func setConfigDefaults() {
	d := types.DefaultPipelineConfig()

	viper.SetDefault("completion.provider", string(types.ProviderGroq))
	viper.SetDefault("completion.timeout", 90*time.Second)
	viper.SetDefault("completion.max_tokens", 4096)
	viper.SetDefault("completion.max_retries", 2)
	viper.SetDefault("completion.user_agent", "deep-researcher/"+version)

	viper.SetDefault("search.timeout", 30*time.Second)
	viper.SetDefault("search.basic_max_results", 5)
	viper.SetDefault("search.deep_max_results", 5)
	viper.SetDefault("search.cache_size", 256)
	viper.SetDefault("search.max_retries", 2)
	viper.SetDefault("search.user_agent", "deep-researcher/"+version)

	viper.SetDefault("pipeline.min_claims", d.MinClaims)
	viper.SetDefault("pipeline.max_claims", d.MaxClaims)
	viper.SetDefault("pipeline.max_concurrency", d.MaxConcurrency)
	viper.SetDefault("pipeline.retention", d.Retention)
	viper.SetDefault("pipeline.retry.max_attempts", d.Retry.MaxAttempts)
	viper.SetDefault("pipeline.retry.base_delay", d.Retry.BaseDelay)
	viper.SetDefault("pipeline.retry.max_delay", d.Retry.MaxDelay)
	viper.SetDefault("pipeline.retry.call_timeout", d.Retry.CallTimeout)

	viper.SetDefault("archive_path", defaultArchivePath)
}

// loadConfig assembles the configuration from the config file and
// environment, then applies command-line overrides.
func loadConfig(cmd *cobra.Command) types.Config {
	cfg := types.Config{
		Completion: types.CompletionConfig{
			HTTPConfig: httpConfig("completion"),
			Provider:   types.CompletionProvider(strings.ToLower(viper.GetString("completion.provider"))),
			Model:      viper.GetString("completion.model"),
			APIKey:     viper.GetString("completion.api_key"),
			BaseURL:    viper.GetString("completion.base_url"),
			MaxTokens:  viper.GetInt("completion.max_tokens"),
		},
		Search: types.SearchConfig{
			HTTPConfig:      httpConfig("search"),
			APIKey:          viper.GetString("search.api_key"),
			BasicMaxResults: viper.GetInt("search.basic_max_results"),
			DeepMaxResults:  viper.GetInt("search.deep_max_results"),
			CacheSize:       viper.GetInt("search.cache_size"),
		},
		Pipeline: types.PipelineConfig{
			Retry: types.RetryConfig{
				MaxAttempts: viper.GetInt("pipeline.retry.max_attempts"),
				BaseDelay:   viper.GetDuration("pipeline.retry.base_delay"),
				MaxDelay:    viper.GetDuration("pipeline.retry.max_delay"),
				CallTimeout: viper.GetDuration("pipeline.retry.call_timeout"),
			},
			MinClaims:      viper.GetInt("pipeline.min_claims"),
			MaxClaims:      viper.GetInt("pipeline.max_claims"),
			MaxConcurrency: viper.GetInt("pipeline.max_concurrency"),
			Retention:      viper.GetDuration("pipeline.retention"),
		},
		ArchivePath: viper.GetString("archive_path"),
	}

	if f := cmd.Flags().Lookup("provider"); f != nil && f.Changed {
		cfg.Completion.Provider = types.CompletionProvider(strings.ToLower(f.Value.String()))
	}
	if f := cmd.Flags().Lookup("model"); f != nil && f.Changed {
		cfg.Completion.Model = f.Value.String()
	}
	if n, err := cmd.Flags().GetInt("concurrency"); err == nil && cmd.Flags().Changed("concurrency") {
		cfg.Pipeline.MaxConcurrency = n
	}
	if f := cmd.Flags().Lookup("archive"); f != nil && f.Changed {
		cfg.ArchivePath = f.Value.String()
	}

	provider := string(cfg.Completion.Provider)
	if provider == "" {
		provider = string(types.ProviderGroq)
	}
	cfg.Completion.APIKey = apiKey(cfg.Completion.APIKey, provider)
	cfg.Search.APIKey = apiKey(cfg.Search.APIKey, "tavily")
	cfg.Pipeline = cfg.Pipeline.WithDefaults()
	return cfg
}

func httpConfig(prefix string) types.HTTPConfig {
	return types.HTTPConfig{
		Timeout:    viper.GetDuration(prefix + ".timeout"),
		UserAgent:  viper.GetString(prefix + ".user_agent"),
		MaxRetries: viper.GetInt(prefix + ".max_retries"),
	}
}

// apiKey resolves a provider key against config, .secrets/ and the environment.
func apiKey(configured, provider string) string {
	return loadedSecrets.Resolve(configured, provider)
}
