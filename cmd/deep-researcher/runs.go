// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/deep-researcher/internal/archive"
	"github.com/pdiddy/deep-researcher/pkg/types"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Browse the archive of finished research runs",
	Long: `Runs reads the SQLite archive that the research command writes finished
runs to. Use subcommands to list runs, show one, export it, or delete it.`,
}

// --- list subcommand ---

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived runs, newest first",
	RunE:  runRunsList,
}

func runRunsList(cmd *cobra.Command, args []string) error {
	store, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	status, _ := cmd.Flags().GetString("status")
	query, _ := cmd.Flags().GetString("query")
	limit, _ := cmd.Flags().GetInt("limit")

	runs, err := store.List(context.Background(), archive.ListOptions{
		Status: types.Status(status),
		Query:  query,
		Limit:  limit,
	})
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatRunList(os.Stdout, runs, jsonOutput)
}

func formatRunList(w io.Writer, runs []archive.Summary, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No archived runs.")
		return nil
	}

	fmt.Fprintf(w, "%-36s  %-9s  %-7s  %-6s  %-11s  %-16s  %s\n",
		"ID", "Status", "Style", "Claims", "Reliability", "Created", "Query")
	fmt.Fprintln(w, strings.Repeat("-", 120))

	for _, r := range runs {
		reliability := "-"
		if r.MeanReliability != nil {
			reliability = fmt.Sprintf("%.1f/10", *r.MeanReliability)
		}
		query := r.OriginalQuery
		if len(query) > 40 {
			query = query[:37] + "..."
		}
		fmt.Fprintf(w, "%-36s  %-9s  %-7s  %-6s  %-11s  %-16s  %s\n",
			r.ID, r.Status, r.ContentStyle, fmt.Sprintf("%d/%d", r.Verified, r.Claims),
			reliability, r.CreatedAt.Local().Format("2006-01-02 15:04"), query)
	}

	fmt.Fprintf(w, "\n%d runs\n", len(runs))
	return nil
}

// --- show subcommand ---

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print an archived run's draft and fact-check report",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	st, err := store.Get(context.Background(), args[0])
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if !jsonOutput {
		printClaims(os.Stderr, st)
	}
	return printRun(os.Stdout, st, jsonOutput)
}

// printClaims writes a one-line verdict per claim.
func printClaims(w io.Writer, st types.ResearchState) {
	fmt.Fprintf(w, "Run %s: %s (%s)\nQuery: %s\n", st.ID, st.Status, st.ContentStyle.Label(), st.OriginalQuery)
	if st.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", st.Error)
	}
	for i, r := range st.VerificationResults {
		score := fmt.Sprintf("%d/10", r.ReliabilityScore)
		if r.Failed() {
			score = "unverified"
		}
		fmt.Fprintf(w, "  %d. [%s, %s] %s\n", i+1, r.Claim.Importance, score, r.Claim.Statement)
	}
	fmt.Fprintln(w)
}

// --- export subcommand ---

var runsExportCmd = &cobra.Command{
	Use:   "export <id> <path>",
	Short: "Export an archived run to YAML, JSON, or Markdown",
	Args:  cobra.ExactArgs(2),
	RunE:  runRunsExport,
}

func runRunsExport(cmd *cobra.Command, args []string) error {
	store, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	st, err := store.Get(context.Background(), args[0])
	if err != nil {
		return err
	}

	path := args[1]
	format := archive.FormatForPath(path)
	if f, _ := cmd.Flags().GetString("format"); f != "" {
		if format, err = archive.ParseFormat(f); err != nil {
			return err
		}
	}
	if err := archive.Export(path, format, st); err != nil {
		return err
	}
	fmt.Printf("Exported %s to %s\n", st.ID, path)
	return nil
}

// --- delete subcommand ---

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an archived run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Delete(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

// --- shared helpers ---

func openArchive(cmd *cobra.Command) (*archive.Store, error) {
	path, _ := cmd.Flags().GetString("archive")
	if !cmd.Flags().Changed("archive") {
		path = viper.GetString("archive_path")
	}
	if path == "" {
		return nil, fmt.Errorf("no archive configured: pass --archive or set archive_path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	return archive.Open(path)
}

func init() {
	runsCmd.PersistentFlags().String("archive", defaultArchivePath, "SQLite archive of finished runs")

	runsListCmd.Flags().String("status", "", "filter by status: completed or failed")
	runsListCmd.Flags().String("query", "", "filter by text in the original query")
	runsListCmd.Flags().Int("limit", 20, "maximum runs to list")
	runsListCmd.Flags().Bool("json", false, "output runs as JSON")

	runsShowCmd.Flags().Bool("json", false, "print the full run record as JSON")

	runsExportCmd.Flags().String("format", "", "export format: yaml, json, or markdown (default: from extension)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsExportCmd)
	runsCmd.AddCommand(runsDeleteCmd)

	rootCmd.AddCommand(runsCmd)
}
