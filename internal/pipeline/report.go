// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/montanaflynn/stats"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/deep-researcher/pkg/types"
)

// ReliabilitySummary aggregates the scores of successfully verified claims.
type ReliabilitySummary struct {
	Verified int
	Failed   int
	Mean     float64
	Median   float64
	Min      int
	Max      int
}

// Summarize aggregates reliability over results, skipping sentinel results.
// With no verified claims only the counts are set.
func Summarize(results []types.VerificationResult) ReliabilitySummary {
	var s ReliabilitySummary
	var scores stats.Float64Data
	for _, r := range results {
		if r.Failed() {
			s.Failed++
			continue
		}
		scores = append(scores, float64(r.ReliabilityScore))
	}
	s.Verified = len(scores)
	if s.Verified == 0 {
		return s
	}

	s.Mean, _ = scores.Mean()
	s.Median, _ = scores.Median()
	lo, _ := scores.Min()
	hi, _ := scores.Max()
	s.Min, s.Max = int(lo), int(hi)
	return s
}

// String renders the aggregate as a single sentence. It is meaningful only
// when at least one claim was verified.
func (s ReliabilitySummary) String() string {
	line := fmt.Sprintf("Aggregate reliability across %d verified claim(s): mean %.1f/10, median %.1f/10, range %d-%d.",
		s.Verified, s.Mean, s.Median, s.Min, s.Max)
	if s.Failed > 0 {
		line += fmt.Sprintf(" %d claim(s) could not be verified.", s.Failed)
	}
	return line
}

// reportEntry is the per-claim view given to the report prompt. Raw search
// snippets are left out; sources are cited through the reference list.
type reportEntry struct {
	Claim            string   `yaml:"claim"`
	Importance       string   `yaml:"importance"`
	ReliabilityScore any      `yaml:"reliability_score"`
	ConfidenceLevel  int      `yaml:"confidence_level,omitempty"`
	Issues           []string `yaml:"issues,omitempty"`
	CorrectedClaim   string   `yaml:"corrected_claim,omitempty"`
	References       []int    `yaml:"references,omitempty"`
}

// generateReport compiles the fact-check report. The report opens with the
// aggregate reliability, or states explicitly that there is none. A failed completion is
// fatal.
func (r *runner) generateReport(ctx context.Context, in types.ResearchState) (Delta, error) {
	summary := Summarize(in.VerificationResults)
	noClaims := len(in.Claims) == 0

	resultsText, err := formatVerificationResults(in.VerificationResults, in.References)
	if err != nil {
		return Delta{}, err
	}

	prompt, err := render(reportPromptTmpl, struct {
		Research   string
		NoClaims   bool
		Summary    ReliabilitySummary
		Results    string
		References string
	}{
		Research:   in.ResearchOutput,
		NoClaims:   noClaims,
		Summary:    summary,
		Results:    resultsText,
		References: types.FormatReferences(in.References),
	})
	if err != nil {
		return Delta{}, err
	}

	report, err := r.completeText(ctx, string(types.StageReport), prompt)
	if err != nil {
		return Delta{}, fmt.Errorf("generating fact-check report: %w", err)
	}

	switch {
	case noClaims:
		report = types.NoClaimsVerifiedNotice + "\n\n" + report
	case summary.Verified == 0:
		report = fmt.Sprintf("None of the %d claims could be verified, so no reliability score was computed.\n\n%s",
			summary.Failed, report)
	default:
		report = summary.String() + "\n\n" + report
	}
	report = appendReferences(report, in.References)

	return Delta{Stage: types.StageReport, FactCheckReport: report}, nil
}

// formatVerificationResults renders results as YAML with reference numbers
// in place of URLs.
func formatVerificationResults(results []types.VerificationResult, refs []types.Reference) (string, error) {
	index := make(map[string]int, len(refs))
	for _, ref := range refs {
		index[ref.URL] = ref.Index
	}

	entries := make([]reportEntry, len(results))
	for i, res := range results {
		e := reportEntry{
			Claim:          res.Claim.Statement,
			Importance:     string(res.Claim.Importance),
			Issues:         res.Issues,
			CorrectedClaim: res.CorrectedClaim,
		}
		if res.Failed() {
			e.ReliabilityScore = "not verified"
		} else {
			e.ReliabilityScore = res.ReliabilityScore
			e.ConfidenceLevel = res.ConfidenceLevel
		}
		for _, src := range res.VerificationSources {
			if n, ok := index[strings.TrimSpace(src)]; ok {
				e.References = append(e.References, n)
			}
		}
		entries[i] = e
	}

	data, err := yaml.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("marshaling verification results: %w", err)
	}
	return string(data), nil
}
