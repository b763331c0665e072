// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets resolves provider API keys. Keys come from a directory of
// plain-text files, one per key (the filename is the key name and the
// trimmed contents are the value), with the provider's environment variable
// as the fallback.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// Source names where a provider's key may be found.
type Source struct {
	File string // file name inside the secrets directory
	Env  string // environment variable
}

// Sources maps a provider name to its key file and environment variable.
var Sources = map[string]Source{
	"groq":      {File: "groq-api-key", Env: "GROQ_API_KEY"},
	"openai":    {File: "openai-api-key", Env: "OPENAI_API_KEY"},
	"anthropic": {File: "anthropic-api-key", Env: "ANTHROPIC_API_KEY"},
	"gemini":    {File: "gemini-api-key", Env: "GEMINI_API_KEY"},
	"tavily":    {File: "tavily-api-key", Env: "TAVILY_API_KEY"},
}

// Set holds the non-empty secrets read from a directory, keyed by file name.
type Set map[string]string

// Load reads all files in dir. A missing directory is not an error and
// yields an empty Set. Unreadable files are logged and skipped.
func Load(dir string, log *zap.Logger) (Set, error) {
	if log == nil {
		log = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Set{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	set := make(Set)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn("could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			set[name] = value
		}
	}
	return set, nil
}

// Names returns the loaded secret names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Resolve returns configured when it is non-empty, otherwise the provider's
// key file from s, otherwise its environment variable. Unknown providers
// resolve to configured.
func (s Set) Resolve(configured, provider string) string {
	if configured != "" {
		return configured
	}
	src, ok := Sources[provider]
	if !ok {
		return ""
	}
	if v, ok := s[src.File]; ok {
		return v
	}
	return os.Getenv(src.Env)
}
