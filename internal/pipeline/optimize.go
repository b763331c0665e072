// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-researcher/pkg/types"
)

// optimizeQuery rewrites the original query into a detailed, domain-specific
// one. It never fails: any error or blank answer falls back to the original
// query.
func (r *runner) optimizeQuery(ctx context.Context, in types.ResearchState) (Delta, error) {
	d := Delta{Stage: types.StageOptimize, OptimizedQuery: in.OriginalQuery}

	prompt, err := render(optimizePromptTmpl, struct{ Query string }{in.OriginalQuery})
	if err != nil {
		return d, nil
	}

	text, err := r.completeText(ctx, string(types.StageOptimize), prompt)
	if err != nil {
		r.log.Warn("query optimization failed, using original query", zap.Error(err))
		d.Warnings = append(d.Warnings, "query optimization failed; the original query was used: "+err.Error())
		return d, nil
	}

	if optimized := cleanOptimizedQuery(text); optimized != "" {
		d.OptimizedQuery = optimized
	}
	return d, nil
}

// cleanOptimizedQuery strips a leading "Optimized query:" label and quotes
// that models like to add.
func cleanOptimizedQuery(text string) string {
	q := strings.TrimSpace(text)
	if i := strings.Index(strings.ToLower(q), "optimized query:"); i == 0 {
		q = strings.TrimSpace(q[len("optimized query:"):])
	}
	return strings.TrimSpace(strings.Trim(q, `"'`))
}
