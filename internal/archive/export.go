// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/deep-researcher/pkg/types"
)

// Format selects an export encoding.
type Format string

const (
	FormatYAML     Format = "yaml"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts a format name or a common file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown export format %q: use yaml, json, or markdown", s)
}

// FormatForPath picks the format implied by the file extension, defaulting
// to YAML.
func FormatForPath(path string) Format {
	if f, err := ParseFormat(filepath.Ext(path)); err == nil {
		return f
	}
	return FormatYAML
}

// Export writes st to path in the given format.
func Export(path string, format Format, st types.ResearchState) error {
	switch format {
	case FormatYAML:
		return ExportYAML(path, st)
	case FormatJSON:
		return ExportJSON(path, st)
	case FormatMarkdown:
		return ExportMarkdown(path, st)
	}
	return fmt.Errorf("unknown export format %q", format)
}

// ExportYAML writes the full run record as YAML.
func ExportYAML(path string, st types.ResearchState) error {
	data, err := yaml.Marshal(&st)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return writeFile(path, data)
}

// ExportJSON writes the full run record as indented JSON.
func ExportJSON(path string, st types.ResearchState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// ExportMarkdown writes the draft followed by the fact-check report.
func ExportMarkdown(path string, st types.ResearchState) error {
	return writeFile(path, []byte(RenderMarkdown(st)))
}

// RenderMarkdown renders the readable outputs of a run as one Markdown document.
func RenderMarkdown(st types.ResearchState) string {
	var b strings.Builder
	if st.DraftContent != "" {
		b.WriteString(strings.TrimRight(st.DraftContent, "\n"))
		b.WriteString("\n\n---\n\n")
	}
	b.WriteString("# Fact-check report\n\n")
	if st.FactCheckReport != "" {
		b.WriteString(strings.TrimRight(st.FactCheckReport, "\n"))
	} else {
		b.WriteString("_No fact-check report was produced._")
	}
	b.WriteString("\n")
	if st.Error != "" {
		fmt.Fprintf(&b, "\n> Run %s failed: %s\n", st.ID, st.Error)
	}
	return b.String()
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating export directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
