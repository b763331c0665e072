// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"

	"github.com/pdiddy/deep-researcher/pkg/types"
)

// draftContent writes the final document in the run's content style. The
// reference list is guaranteed to close the draft. A failed completion is fatal.
func (r *runner) draftContent(ctx context.Context, in types.ResearchState) (Delta, error) {
	prompt, err := render(draftPromptTmpl, struct {
		Style, Instruction, Query, Research, FactCheck, References string
	}{
		Style:       in.ContentStyle.Label(),
		Instruction: in.ContentStyle.Instruction(),
		Query:       in.OptimizedQuery,
		Research:    in.ResearchOutput,
		FactCheck:   in.FactCheckReport,
		References:  types.FormatReferences(in.References),
	})
	if err != nil {
		return Delta{}, err
	}

	draft, err := r.completeText(ctx, string(types.StageDraft), prompt)
	if err != nil {
		return Delta{}, fmt.Errorf("drafting content: %w", err)
	}
	return Delta{Stage: types.StageDraft, DraftContent: appendReferences(draft, in.References)}, nil
}
