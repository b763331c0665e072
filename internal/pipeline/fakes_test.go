// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-researcher/internal/llm"
	"github.com/pdiddy/deep-researcher/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- test helpers ---

var roles = []string{roleOptimizer, roleResearcher, roleExtractor, roleVerifier, roleReporter, roleDrafter}

func roleOf(prompt string) string {
	for _, r := range roles {
		if strings.HasPrefix(prompt, r) {
			return r
		}
	}
	return ""
}

var claimLine = regexp.MustCompile(`(?m)^CLAIM: (.*)$`)

// claimOf returns the claim a verification prompt asks about.
func claimOf(prompt string) string {
	if m := claimLine.FindStringSubmatch(prompt); m != nil {
		return m[1]
	}
	return ""
}

type completeFunc func(ctx context.Context, req llm.Request) (string, error)

// fakeLLM answers completions by prompt role and counts calls per role.
type fakeLLM struct {
	mu       sync.Mutex
	handlers map[string]completeFunc
	calls    map[string]int
	prompts  map[string][]string
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{
		handlers: map[string]completeFunc{
			roleOptimizer:  reply("Optimized query: \"impact of remote work arrangements on employee productivity metrics\""),
			roleResearcher: reply("<think>planning</think>Remote work raised output per hour in several studies [1]. Commute time fell by 40 minutes per day."),
			roleExtractor: reply(`{"claims": [
				{"statement": "Remote work raises output per hour", "importance": "high"},
				{"statement": "Commute time falls by 40 minutes per day", "importance": "Medium"},
				{"statement": "Remote workers take fewer sick days", "importance": "low"},
				{"statement": "Collaboration suffers in fully remote teams", "importance": "high"}
			]}`),
			roleVerifier:  reply(`{"reliability_score": 7, "confidence_level": 8, "inaccuracies": [], "missing_context": ["sample sizes vary"], "potential_biases": [], "corrected_claim": ""}`),
			roleReporter:  reply("Overall the research is moderately reliable."),
			roleDrafter:   reply("# Remote work and productivity\n\nThe evidence is mixed but mostly positive."),
		},
		calls:   make(map[string]int),
		prompts: make(map[string][]string),
	}
}

func reply(text string) completeFunc {
	return func(context.Context, llm.Request) (string, error) { return text, nil }
}

func fail(err error) completeFunc {
	return func(context.Context, llm.Request) (string, error) { return "", err }
}

func (f *fakeLLM) on(role string, fn completeFunc) *fakeLLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[role] = fn
	return f
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	role := roleOf(req.Prompt)
	f.mu.Lock()
	f.calls[role]++
	f.prompts[role] = append(f.prompts[role], req.Prompt)
	fn := f.handlers[role]
	f.mu.Unlock()
	if fn == nil {
		return "", fmt.Errorf("no handler for prompt %.40q", req.Prompt)
	}
	return fn(ctx, req)
}

func (f *fakeLLM) count(role string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[role]
}

func (f *fakeLLM) lastPrompt(role string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.prompts[role]
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

type searchFunc func(ctx context.Context, query string, depth types.SearchDepth) ([]types.SearchResult, error)

// fakeSearch answers basic and deep searches separately and counts calls.
type fakeSearch struct {
	mu    sync.Mutex
	basic searchFunc
	deep  searchFunc
	calls map[string]int
}

func newFakeSearch() *fakeSearch {
	return &fakeSearch{
		basic: func(context.Context, string, types.SearchDepth) ([]types.SearchResult, error) {
			return []types.SearchResult{
				{URL: "https://example.com/study", Title: "Remote work study", Content: "Output per hour rose."},
				{URL: "https://example.com/survey", Title: "Commute survey", Content: "Commutes fell."},
			}, nil
		},
		deep: func(_ context.Context, query string, _ types.SearchDepth) ([]types.SearchResult, error) {
			return []types.SearchResult{
				{URL: "https://example.com/shared", Title: "Shared source", Content: "Covers every claim."},
				{URL: "https://example.com/" + slug(query), Title: query, Content: "Evidence for " + query},
			}, nil
		},
		calls: make(map[string]int),
	}
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "-")
}

func (f *fakeSearch) Search(ctx context.Context, query string, depth types.SearchDepth) ([]types.SearchResult, error) {
	f.mu.Lock()
	f.calls[string(depth)+":"+query]++
	fn := f.basic
	if depth == types.DepthDeep {
		fn = f.deep
	}
	f.mu.Unlock()
	return fn(ctx, query, depth)
}

func (f *fakeSearch) count(depth types.SearchDepth, query string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[string(depth)+":"+query]
}

func testConfig() types.PipelineConfig {
	cfg := types.DefaultPipelineConfig()
	cfg.Retry = types.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		CallTimeout: 5 * time.Second,
	}
	return cfg
}

func newTestRunner(completion llm.Client, search *fakeSearch) *runner {
	cfg := testConfig()
	return &runner{
		completion: completion,
		search:     search,
		cfg:        cfg,
		policy:     PolicyFrom(cfg.Retry),
		log:        zap.NewNop(),
	}
}

// fakeClock is a settable clock for run timestamps and sweeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingArchiver keeps every state it is asked to save.
type recordingArchiver struct {
	mu    sync.Mutex
	saved []types.ResearchState
	err   error
}

func (a *recordingArchiver) Save(_ context.Context, st types.ResearchState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved = append(a.saved, st)
	return a.err
}

func (a *recordingArchiver) states() []types.ResearchState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.ResearchState(nil), a.saved...)
}
