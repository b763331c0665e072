// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"strings"

	"github.com/pdiddy/deep-researcher/pkg/types"
)

// CollectReferences numbers the distinct verification source URLs in the
// order they are first seen, scanning results in claim order. It is a pure
// function of its input: the same results always give the same references.
func CollectReferences(results []types.VerificationResult) []types.Reference {
	refs := []types.Reference{}
	seen := make(map[string]bool)
	for _, r := range results {
		for _, src := range r.VerificationSources {
			url := strings.TrimSpace(src)
			if url == "" || seen[url] {
				continue
			}
			seen[url] = true
			refs = append(refs, types.Reference{Index: len(refs) + 1, URL: url})
		}
	}
	return refs
}
