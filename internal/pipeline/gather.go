// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-researcher/internal/websearch"
	"github.com/pdiddy/deep-researcher/pkg/types"
)

// gatherResearch searches for the optimized query and synthesizes the full
// result set into one narrative. With no results it writes the degraded
// marker instead of calling the model. Search or synthesis failures after
// retries are fatal.
func (r *runner) gatherResearch(ctx context.Context, in types.ResearchState) (Delta, error) {
	results, err := r.searchWithRetry(ctx, "research search", in.OptimizedQuery, types.DepthBasic)
	if err != nil {
		return Delta{}, fmt.Errorf("searching for research material: %w", err)
	}

	if len(results) == 0 {
		r.log.Warn("general search returned no results")
		return Delta{
			Stage:          types.StageGather,
			ResearchOutput: types.InsufficientSourceMaterial,
			Warnings:       []string{"the research search returned no results"},
		}, nil
	}
	r.log.Debug("research search complete", zap.Int("results", len(results)))

	prompt, err := render(researchPromptTmpl, struct{ Query, Results string }{
		Query:   in.OptimizedQuery,
		Results: websearch.FormatResults(results),
	})
	if err != nil {
		return Delta{}, err
	}

	narrative, err := r.completeText(ctx, "research synthesis", prompt)
	if err != nil {
		return Delta{}, fmt.Errorf("synthesizing research: %w", err)
	}
	return Delta{Stage: types.StageGather, ResearchOutput: narrative}, nil
}
