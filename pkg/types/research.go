// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the deep-researcher pipeline:
// the ResearchState record threaded through every stage, the claim and
// verification records it accumulates, and stage configuration.
package types

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// InsufficientSourceMaterial is the degraded research narrative written when the
// general search returns no results. Downstream stages recognise it and skip
// work that would otherwise require fabricated content.
const InsufficientSourceMaterial = "[insufficient source material] The search returned no results for this query; no research narrative could be produced."

// NoClaimsVerifiedNotice opens every fact-check report produced without claims.
const NoClaimsVerifiedNotice = "No claims were available for verification, so no reliability score was computed."

// SentinelScore marks a VerificationResult whose verification failed irrecoverably.
const SentinelScore = -1

// Status is the lifecycle state of a research run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ContentStyle selects the shape of the final draft.
type ContentStyle string

const (
	StyleBlog    ContentStyle = "blog"
	StyleReport  ContentStyle = "report"
	StyleSummary ContentStyle = "summary"
)

// styleInstructions holds the drafting instruction for each style.
var styleInstructions = map[ContentStyle]string{
	StyleBlog:    "Create an engaging blog post that presents the research findings in a conversational tone with clear headings, examples, and actionable insights.",
	StyleReport:  "Structure a comprehensive report with executive summary, methodology, findings, analysis, and recommendations. Include relevant data points and cite sources appropriately.",
	StyleSummary: "Provide a concise executive summary highlighting key findings, implications, and recommended actions. Focus on business impact and strategic considerations.",
}

// styleLabels are the human-readable names used in prompts.
var styleLabels = map[ContentStyle]string{
	StyleBlog:    "blog post",
	StyleReport:  "detailed report",
	StyleSummary: "executive summary",
}

// Valid reports whether s is one of the known styles.
func (s ContentStyle) Valid() bool {
	_, ok := styleInstructions[s]
	return ok
}

// Instruction returns the drafting instruction for the style.
func (s ContentStyle) Instruction() string {
	return styleInstructions[s]
}

// Label returns the human-readable style name, e.g. "detailed report".
func (s ContentStyle) Label() string {
	if l, ok := styleLabels[s]; ok {
		return l
	}
	return string(s)
}

// ParseContentStyle accepts a style name ("blog", "report", "summary"), one of
// the long labels ("blog post", "detailed report", "executive summary"), or the
// numeric menu choices 1, 2 and 3.
func ParseContentStyle(s string) (ContentStyle, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(v); err == nil {
		switch n {
		case 1:
			return StyleBlog, nil
		case 2:
			return StyleReport, nil
		case 3:
			return StyleSummary, nil
		}
		return "", fmt.Errorf("style number must be between 1 and 3, got %d", n)
	}
	if cs := ContentStyle(v); cs.Valid() {
		return cs, nil
	}
	for cs, label := range styleLabels {
		if v == label {
			return cs, nil
		}
	}
	return "", fmt.Errorf("unknown content style %q: use blog, report, or summary", s)
}

// Importance ranks how much a claim matters to the narrative.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

// ParseImportance normalizes an importance label. It is case-insensitive and
// returns false for anything outside high, medium and low.
func ParseImportance(s string) (Importance, bool) {
	switch imp := Importance(strings.ToLower(strings.TrimSpace(s))); imp {
	case ImportanceHigh, ImportanceMedium, ImportanceLow:
		return imp, true
	}
	return "", false
}

// Claim is a discrete factual assertion extracted from the research narrative.
type Claim struct {
	Statement  string     `json:"statement" yaml:"statement"`
	Importance Importance `json:"importance" yaml:"importance"`
}

// VerificationResult is the credibility judgement for one claim.
type VerificationResult struct {
	// Claim is a copy of the claim this result judges.
	Claim Claim `json:"claim" yaml:"claim"`

	// ReliabilityScore is 0-10, or SentinelScore when verification failed.
	ReliabilityScore int `json:"reliability_score" yaml:"reliability_score"`

	// ConfidenceLevel is the model's confidence in its own judgement (0-10).
	ConfidenceLevel int `json:"confidence_level" yaml:"confidence_level"`

	// Issues lists inaccuracies, missing context and biases found.
	Issues []string `json:"issues" yaml:"issues"`

	// CorrectedClaim is an improved statement of the claim, if the model offered one.
	CorrectedClaim string `json:"corrected_claim,omitempty" yaml:"corrected_claim,omitempty"`

	// VerificationSources are the URLs returned by the claim's own search.
	VerificationSources []string `json:"verification_sources" yaml:"verification_sources"`
}

// Failed reports whether r is a sentinel result.
func (r VerificationResult) Failed() bool {
	return r.ReliabilityScore == SentinelScore
}

// Reference is a numbered, deduplicated source URL.
type Reference struct {
	Index int    `json:"index" yaml:"index"`
	URL   string `json:"url" yaml:"url"`
}

// String renders the reference as a numbered list entry, e.g. "1. https://...".
func (r Reference) String() string {
	return fmt.Sprintf("%d. %s", r.Index, r.URL)
}

// FormatReferences renders references one per line.
func FormatReferences(refs []Reference) string {
	lines := make([]string, len(refs))
	for i, r := range refs {
		lines[i] = r.String()
	}
	return strings.Join(lines, "\n")
}

// SearchDepth trades breadth for cost in a web search.
type SearchDepth string

const (
	DepthBasic SearchDepth = "basic"
	DepthDeep  SearchDepth = "deep"
)

// SearchResult is one ranked snippet returned by the web search service.
type SearchResult struct {
	URL     string `json:"url" yaml:"url"`
	Title   string `json:"title" yaml:"title"`
	Content string `json:"content" yaml:"content"`
}

// Stage names one pipeline component.
type Stage string

const (
	StageNone       Stage = ""
	StageOptimize   Stage = "optimize_query"
	StageGather     Stage = "gather_research"
	StageExtract    Stage = "extract_claims"
	StageVerify     Stage = "verify_claims"
	StageReferences Stage = "collect_references"
	StageReport     Stage = "fact_check_report"
	StageDraft      Stage = "draft_content"
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{
	StageOptimize,
	StageGather,
	StageExtract,
	StageVerify,
	StageReferences,
	StageReport,
	StageDraft,
}

func stageIndex(st Stage) int {
	for i, s := range Stages {
		if s == st {
			return i
		}
	}
	return -1
}

// ResearchState is the record of one research run. Each stage writes its own
// fields exactly once; the orchestrator owns the record and hands out copies.
type ResearchState struct {
	ID                  string               `json:"id" yaml:"id"`
	OriginalQuery       string               `json:"original_query" yaml:"original_query"`
	OptimizedQuery      string               `json:"optimized_query" yaml:"optimized_query"`
	ResearchOutput      string               `json:"research_output" yaml:"research_output"`
	Claims              []Claim              `json:"claims" yaml:"claims"`
	VerificationResults []VerificationResult `json:"verification_results" yaml:"verification_results"`
	References          []Reference          `json:"references" yaml:"references"`
	FactCheckReport     string               `json:"fact_check_report" yaml:"fact_check_report"`
	ContentStyle        ContentStyle         `json:"content_style" yaml:"content_style"`
	DraftContent        string               `json:"draft_content" yaml:"draft_content"`
	Status              Status               `json:"status" yaml:"status"`

	// Stage is the last stage that completed successfully.
	Stage Stage `json:"stage" yaml:"stage"`

	// Error is the human-readable failure reason of a failed run.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// Warnings records failures the pipeline recovered from, such as a query
	// optimization fallback or a claim that could not be verified.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// NewResearchState returns a pending state holding only the caller's inputs.
func NewResearchState(id, query string, style ContentStyle, now time.Time) ResearchState {
	return ResearchState{
		ID:            id,
		OriginalQuery: query,
		ContentStyle:  style,
		Status:        StatusPending,
		CreatedAt:     now,
	}
}

// Clone returns a deep copy of s. Snapshots handed to callers never share
// backing arrays with the live record.
func (s ResearchState) Clone() ResearchState {
	c := s
	c.Claims = slices.Clone(s.Claims)
	if s.VerificationResults != nil {
		c.VerificationResults = make([]VerificationResult, len(s.VerificationResults))
		for i, r := range s.VerificationResults {
			r.Issues = slices.Clone(r.Issues)
			r.VerificationSources = slices.Clone(r.VerificationSources)
			c.VerificationResults[i] = r
		}
	}
	c.References = slices.Clone(s.References)
	c.Warnings = slices.Clone(s.Warnings)
	return c
}

// Reached reports whether stage st has completed for this run.
func (s ResearchState) Reached(st Stage) bool {
	i := stageIndex(st)
	return i >= 0 && stageIndex(s.Stage) >= i
}

// Degraded reports whether the research narrative is the insufficient-material marker.
func (s ResearchState) Degraded() bool {
	return s.ResearchOutput == InsufficientSourceMaterial
}
