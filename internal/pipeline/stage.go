// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-researcher/internal/llm"
	"github.com/pdiddy/deep-researcher/internal/websearch"
	"github.com/pdiddy/deep-researcher/pkg/types"
)

// stageOrder lists the stages in execution order.
var stageOrder = types.Stages

// Delta is the output of one stage. Only the fields owned by Stage are
// merged into the state; the rest are ignored.
type Delta struct {
	Stage types.Stage

	OptimizedQuery      string
	ResearchOutput      string
	Claims              []types.Claim
	VerificationResults []types.VerificationResult
	References          []types.Reference
	FactCheckReport     string
	DraftContent        string

	// Warnings are recovered failures worth surfacing to the caller.
	Warnings []string
}

// apply merges d into s. Each stage writes exactly once, in order, right
// after its predecessor.
func (d Delta) apply(s *types.ResearchState) error {
	if s.Status.IsTerminal() {
		return errTerminal
	}
	if next := nextStage(s.Stage); d.Stage != next {
		return fmt.Errorf("%w: got %q, expected %q", errStageOrder, d.Stage, next)
	}

	switch d.Stage {
	case types.StageOptimize:
		s.OptimizedQuery = d.OptimizedQuery
	case types.StageGather:
		s.ResearchOutput = d.ResearchOutput
	case types.StageExtract:
		s.Claims = append(make([]types.Claim, 0, len(d.Claims)), d.Claims...)
	case types.StageVerify:
		s.VerificationResults = append(make([]types.VerificationResult, 0, len(d.VerificationResults)), d.VerificationResults...)
	case types.StageReferences:
		s.References = append(make([]types.Reference, 0, len(d.References)), d.References...)
	case types.StageReport:
		s.FactCheckReport = d.FactCheckReport
	case types.StageDraft:
		s.DraftContent = d.DraftContent
	}
	s.Warnings = append(s.Warnings, d.Warnings...)
	s.Stage = d.Stage
	return nil
}

func nextStage(last types.Stage) types.Stage {
	if last == types.StageNone {
		return stageOrder[0]
	}
	for i, st := range stageOrder[:len(stageOrder)-1] {
		if st == last {
			return stageOrder[i+1]
		}
	}
	return types.StageNone
}

// runner executes individual stages against the external services.
type runner struct {
	completion llm.Client
	search     websearch.Client
	cfg        types.PipelineConfig
	policy     RetryPolicy
	log        *zap.Logger
}

func (r *runner) run(ctx context.Context, stage types.Stage, in types.ResearchState) (Delta, error) {
	switch stage {
	case types.StageOptimize:
		return r.optimizeQuery(ctx, in)
	case types.StageGather:
		return r.gatherResearch(ctx, in)
	case types.StageExtract:
		return r.extractClaims(ctx, in)
	case types.StageVerify:
		return r.verifyClaims(ctx, in)
	case types.StageReferences:
		return Delta{Stage: types.StageReferences, References: CollectReferences(in.VerificationResults)}, nil
	case types.StageReport:
		return r.generateReport(ctx, in)
	case types.StageDraft:
		return r.draftContent(ctx, in)
	}
	return Delta{}, fmt.Errorf("unknown stage %q", stage)
}

// completeText runs a free-text completion under the retry policy. An empty
// answer counts as malformed output and is asked for once more with a
// stricter prompt.
func (r *runner) completeText(ctx context.Context, op, prompt string) (string, error) {
	call := func(p string) (string, error) {
		var text string
		err := retry(ctx, r.policy, r.log, op, func(ctx context.Context) error {
			out, err := r.completion.Complete(ctx, llm.Request{Prompt: p, Format: llm.FreeText})
			if err != nil {
				return err
			}
			out = llm.StripThinking(out)
			if out == "" {
				return ErrEmptyCompletion
			}
			text = out
			return nil
		})
		return text, err
	}

	text, err := call(prompt)
	if err != nil && Classify(err) == Malformed && ctx.Err() == nil {
		r.log.Warn("empty completion, re-prompting", zap.String("op", op))
		text, err = call(prompt + strictTextSuffix)
	}
	return text, err
}

// completeJSON runs a structured completion under the retry policy. decode
// receives the raw text and must build a fresh value on every call. Output
// that fails validation is asked for once more with a stricter prompt.
func (r *runner) completeJSON(ctx context.Context, op, prompt string, decode func(text string) error) error {
	call := func(p string) error {
		return retry(ctx, r.policy, r.log, op, func(ctx context.Context) error {
			text, err := r.completion.Complete(ctx, llm.Request{Prompt: p, Format: llm.Structured})
			if err != nil {
				return err
			}
			return decode(text)
		})
	}

	err := call(prompt)
	if err != nil && Classify(err) == Malformed && ctx.Err() == nil {
		r.log.Warn("malformed structured output, re-prompting", zap.String("op", op), zap.Error(err))
		err = call(prompt + strictJSONSuffix)
	}
	return err
}

// searchWithRetry runs one search under the retry policy.
func (r *runner) searchWithRetry(ctx context.Context, op, query string, depth types.SearchDepth) ([]types.SearchResult, error) {
	var results []types.SearchResult
	err := retry(ctx, r.policy, r.log, op, func(ctx context.Context) error {
		res, err := r.search.Search(ctx, query, depth)
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	return results, err
}

// appendReferences adds a References section to text unless every reference
// URL already appears in it.
func appendReferences(text string, refs []types.Reference) string {
	if len(refs) == 0 {
		return text
	}
	for _, ref := range refs {
		if !strings.Contains(text, ref.URL) {
			return strings.TrimRight(text, "\n") + "\n\n## References\n\n" + types.FormatReferences(refs) + "\n"
		}
	}
	return text
}
