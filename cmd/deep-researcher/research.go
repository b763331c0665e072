// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-researcher/internal/archive"
	"github.com/pdiddy/deep-researcher/internal/llm"
	"github.com/pdiddy/deep-researcher/internal/pipeline"
	"github.com/pdiddy/deep-researcher/internal/websearch"
	"github.com/pdiddy/deep-researcher/pkg/types"
)

var researchCmd = &cobra.Command{
	Use:   "research [query]",
	Short: "Research a question and draft fact-checked content",
	Long: `Research runs a query through every pipeline stage and prints the draft
followed by the fact-check report. Stage progress is written to stderr.

Styles: blog (1), report (2), summary (3). The finished run is saved to the
archive unless --archive is set to an empty string. Press Ctrl-C to cancel a
run; it stops at the next stage boundary.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

var stageLabels = map[types.Stage]string{
	types.StageOptimize:   "optimized query",
	types.StageGather:     "gathered research",
	types.StageExtract:    "extracted claims",
	types.StageVerify:     "verified claims",
	types.StageReferences: "collected references",
	types.StageReport:     "wrote fact-check report",
	types.StageDraft:      "drafted content",
}

func runResearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	styleFlag, _ := cmd.Flags().GetString("style")
	style, err := types.ParseContentStyle(styleFlag)
	if err != nil {
		return err
	}

	cfg := loadConfig(cmd)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, closeFn, err := newOrchestrator(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go orch.Janitor(janitorCtx, time.Hour, cfg.Pipeline.Retention)

	id, err := orch.Start(ctx, query, style)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Researching %q (run %s, %s)\n", query, id, style.Label())

	interval, _ := cmd.Flags().GetDuration("poll")
	st, runErr := followRun(ctx, orch, id, interval, os.Stderr)

	for _, w := range st.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	if path, _ := cmd.Flags().GetString("export"); path != "" {
		format := archive.FormatForPath(path)
		if f, _ := cmd.Flags().GetString("format"); f != "" {
			if format, err = archive.ParseFormat(f); err != nil {
				return err
			}
		}
		if err := archive.Export(path, format, st); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported run to %s\n", path)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if err := printRun(os.Stdout, st, jsonOutput); err != nil {
		return err
	}
	if runErr != nil {
		var stageErr *pipeline.StageError
		if errors.As(runErr, &stageErr) {
			return fmt.Errorf("research failed at %s: %w", stageErr.Stage, stageErr.Err)
		}
		return runErr
	}
	return nil
}

// newOrchestrator builds the completion and search clients and, when an
// archive path is configured, the archive store.
func newOrchestrator(ctx context.Context, cfg types.Config) (*pipeline.Orchestrator, func(), error) {
	completion, err := llm.New(ctx, cfg.Completion)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Search.APIKey == "" {
		return nil, nil, fmt.Errorf("no Tavily API key: set TAVILY_API_KEY or add .secrets/tavily-api-key")
	}
	var search websearch.Client = websearch.NewTavily(cfg.Search)
	if cfg.Search.CacheSize > 0 {
		cached, err := websearch.NewCached(search, cfg.Search.CacheSize)
		if err != nil {
			return nil, nil, fmt.Errorf("creating search cache: %w", err)
		}
		search = cached
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	closeFn := func() {}
	if cfg.ArchivePath != "" {
		store, err := archive.Open(cfg.ArchivePath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, pipeline.WithArchiver(store))
		closeFn = func() {
			if err := store.Close(); err != nil {
				logger.Warn("closing archive", zap.Error(err))
			}
		}
	}

	return pipeline.New(completion, search, cfg.Pipeline, opts...), closeFn, nil
}

// followRun polls the run's state, reporting each completed stage to w,
// until the run finishes. Cancelling ctx cancels the run.
func followRun(ctx context.Context, orch *pipeline.Orchestrator, id string, interval time.Duration, w io.Writer) (types.ResearchState, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	reported := 0
	report := func(st types.ResearchState) {
		for reported < len(types.Stages) && st.Reached(types.Stages[reported]) {
			stage := types.Stages[reported]
			reported++
			fmt.Fprintf(w, "[%d/%d] %s\n", reported, len(types.Stages), stageLabels[stage])
		}
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(w, "Cancelling run...")
			_ = orch.Cancel(id)
			st, err := orch.Wait(context.Background(), id)
			report(st)
			return st, err
		case <-ticker.C:
			st, err := orch.State(id)
			if err != nil {
				return st, err
			}
			report(st)
			if st.Status.IsTerminal() {
				return orch.Wait(context.Background(), id)
			}
		}
	}
}

func printRun(w io.Writer, st types.ResearchState, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	if st.Status != types.StatusCompleted && st.FactCheckReport == "" && st.DraftContent == "" {
		return nil
	}
	_, err := io.WriteString(w, archive.RenderMarkdown(st))
	return err
}

func init() {
	researchCmd.Flags().String("style", "report", "content style: blog (1), report (2), or summary (3)")
	researchCmd.Flags().String("provider", "", "completion provider: groq, openai, anthropic, or gemini")
	researchCmd.Flags().String("model", "", "completion model identifier")
	researchCmd.Flags().Int("concurrency", 0, "maximum concurrent claim verifications (0 = config default)")
	researchCmd.Flags().String("export", "", "write the finished run to this file")
	researchCmd.Flags().String("format", "", "export format: yaml, json, or markdown (default: from --export extension)")
	researchCmd.Flags().String("archive", defaultArchivePath, "SQLite archive for finished runs (empty disables)")
	researchCmd.Flags().Bool("json", false, "print the full run record as JSON")
	researchCmd.Flags().Duration("poll", 500*time.Millisecond, "progress polling interval")

	rootCmd.AddCommand(researchCmd)
}
