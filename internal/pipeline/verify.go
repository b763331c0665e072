// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/deep-researcher/internal/llm"
	"github.com/pdiddy/deep-researcher/internal/websearch"
	"github.com/pdiddy/deep-researcher/pkg/types"
)

// judgement is the structured credibility assessment for one claim. Scores
// arrive as JSON numbers and may be fractional. "accuracy_score" is accepted
// as an alias of "reliability_score".
type judgement struct {
	ReliabilityScore *float64 `json:"reliability_score"`
	AccuracyScore    *float64 `json:"accuracy_score"`
	ConfidenceLevel  *float64 `json:"confidence_level"`
	Issues           []string `json:"issues"`
	Inaccuracies     []string `json:"inaccuracies"`
	MissingContext   []string `json:"missing_context"`
	PotentialBiases  []string `json:"potential_biases"`
	CorrectedClaim   string   `json:"corrected_claim"`
}

func (j *judgement) score() *float64 {
	if j.ReliabilityScore != nil {
		return j.ReliabilityScore
	}
	return j.AccuracyScore
}

func (j *judgement) Validate() error {
	s := j.score()
	if s == nil {
		return errors.New("missing reliability_score")
	}
	if *s < 0 || *s > 10 {
		return fmt.Errorf("reliability_score %v out of range [0,10]", *s)
	}
	if c := j.ConfidenceLevel; c != nil && (*c < 0 || *c > 10) {
		return fmt.Errorf("confidence_level %v out of range [0,10]", *c)
	}
	return nil
}

// issues flattens every finding list into one, dropping blanks.
func (j *judgement) issues() []string {
	var out []string
	for _, list := range [][]string{j.Issues, j.Inaccuracies, j.MissingContext, j.PotentialBiases} {
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// verifyClaims checks every claim concurrently, at most MaxConcurrency at a
// time. Each task writes only its own slot, so results stay index-aligned
// with the claims whatever order the tasks finish in. A claim that cannot be
// verified gets a sentinel result; this stage never fails the run.
func (r *runner) verifyClaims(ctx context.Context, in types.ResearchState) (Delta, error) {
	results := make([]types.VerificationResult, len(in.Claims))

	var g errgroup.Group
	g.SetLimit(r.cfg.MaxConcurrency)
	for i, claim := range in.Claims {
		g.Go(func() error {
			results[i] = r.verifyClaim(ctx, i, claim)
			return nil
		})
	}
	g.Wait()

	d := Delta{Stage: types.StageVerify, VerificationResults: results}
	for i, res := range results {
		if res.Failed() {
			d.Warnings = append(d.Warnings, fmt.Sprintf("claim %d could not be verified", i+1))
		}
	}
	return d, nil
}

// verifyClaim searches for evidence on one claim and asks the model for a
// credibility judgement. Sources are the URLs of the claim's own search,
// never URLs the model mentions.
func (r *runner) verifyClaim(ctx context.Context, i int, claim types.Claim) types.VerificationResult {
	log := r.log.With(zap.Int("claim", i))

	results, err := r.searchWithRetry(ctx, fmt.Sprintf("verification search %d", i+1), claim.Statement, types.DepthDeep)
	if err != nil {
		log.Warn("verification search failed", zap.Error(err))
		return sentinel(claim, nil, fmt.Sprintf("verification search failed: %v", err))
	}
	sources := websearch.URLs(results)

	evidence := websearch.FormatResults(results)
	if evidence == "" {
		evidence = "(the verification search returned no results)"
	}
	prompt, err := render(verifyPromptTmpl, struct{ Claim, Evidence string }{claim.Statement, evidence})
	if err != nil {
		return sentinel(claim, sources, fmt.Sprintf("rendering verification prompt: %v", err))
	}

	var j judgement
	err = r.completeJSON(ctx, fmt.Sprintf("credibility check %d", i+1), prompt, func(text string) error {
		var fresh judgement
		if err := llm.DecodeJSON(text, &fresh); err != nil {
			return err
		}
		j = fresh
		return nil
	})
	if err != nil {
		log.Warn("credibility check failed", zap.Error(err))
		return sentinel(claim, sources, fmt.Sprintf("credibility check failed: %v", err))
	}

	res := types.VerificationResult{
		Claim:               claim,
		ReliabilityScore:    int(math.Round(*j.score())),
		Issues:              j.issues(),
		CorrectedClaim:      strings.TrimSpace(j.CorrectedClaim),
		VerificationSources: sources,
	}
	if j.ConfidenceLevel != nil {
		res.ConfidenceLevel = int(math.Round(*j.ConfidenceLevel))
	}
	if res.Issues == nil {
		res.Issues = []string{}
	}
	log.Debug("claim verified", zap.Int("score", res.ReliabilityScore), zap.Int("sources", len(sources)))
	return res
}

func sentinel(claim types.Claim, sources []string, issue string) types.VerificationResult {
	if sources == nil {
		sources = []string{}
	}
	return types.VerificationResult{
		Claim:               claim,
		ReliabilityScore:    types.SentinelScore,
		Issues:              []string{issue},
		VerificationSources: sources,
	}
}
