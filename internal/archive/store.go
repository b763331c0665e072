// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package archive persists finished research runs in SQLite and exports
// them as YAML, JSON or Markdown.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/deep-researcher/pkg/types"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("archived run not found")

const defaultListLimit = 20

// Store manages the run archive SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the archive database at path, creating parent
// directories and the schema as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			original_query TEXT NOT NULL,
			optimized_query TEXT,
			research_output TEXT,
			fact_check_report TEXT,
			content_style TEXT,
			draft_content TEXT,
			status TEXT NOT NULL,
			stage TEXT,
			error TEXT,
			warnings TEXT,
			created_at TEXT,
			started_at TEXT,
			finished_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
		`CREATE TABLE IF NOT EXISTS claims (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			statement TEXT NOT NULL,
			importance TEXT NOT NULL,
			verified INTEGER NOT NULL DEFAULT 0,
			reliability_score INTEGER,
			confidence_level INTEGER,
			issues TEXT,
			corrected_claim TEXT,
			sources TEXT,
			PRIMARY KEY (run_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS refs (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			idx INTEGER NOT NULL,
			url TEXT NOT NULL,
			PRIMARY KEY (run_id, idx)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save stores a terminal run, replacing any earlier copy with the same id.
func (s *Store) Save(ctx context.Context, st types.ResearchState) error {
	if !st.Status.IsTerminal() {
		return fmt.Errorf("run %s is %s; only finished runs are archived", st.ID, st.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	warningsJSON, _ := json.Marshal(st.Warnings)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, original_query, optimized_query, research_output, fact_check_report,
			content_style, draft_content, status, stage, error, warnings, created_at, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			original_query=excluded.original_query, optimized_query=excluded.optimized_query,
			research_output=excluded.research_output, fact_check_report=excluded.fact_check_report,
			content_style=excluded.content_style, draft_content=excluded.draft_content,
			status=excluded.status, stage=excluded.stage, error=excluded.error,
			warnings=excluded.warnings, created_at=excluded.created_at,
			started_at=excluded.started_at, finished_at=excluded.finished_at`,
		st.ID, st.OriginalQuery, st.OptimizedQuery, st.ResearchOutput, st.FactCheckReport,
		string(st.ContentStyle), st.DraftContent, string(st.Status), string(st.Stage), st.Error,
		string(warningsJSON), formatTime(st.CreatedAt), formatTime(st.StartedAt), formatTime(st.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	for _, table := range []string{"claims", "refs"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, st.ID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	if err := insertClaims(ctx, tx, st); err != nil {
		return err
	}
	if err := insertRefs(ctx, tx, st); err != nil {
		return err
	}

	return tx.Commit()
}

func insertClaims(ctx context.Context, tx *sql.Tx, st types.ResearchState) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO claims (run_id, position, statement, importance, verified,
			reliability_score, confidence_level, issues, corrected_claim, sources)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing claim insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range st.Claims {
		var (
			verified          int
			score, confidence sql.NullInt64
			issues, sources   sql.NullString
			corrected         string
		)
		if i < len(st.VerificationResults) {
			r := st.VerificationResults[i]
			verified = 1
			score = sql.NullInt64{Int64: int64(r.ReliabilityScore), Valid: true}
			confidence = sql.NullInt64{Int64: int64(r.ConfidenceLevel), Valid: true}
			issuesJSON, _ := json.Marshal(r.Issues)
			sourcesJSON, _ := json.Marshal(r.VerificationSources)
			issues = sql.NullString{String: string(issuesJSON), Valid: true}
			sources = sql.NullString{String: string(sourcesJSON), Valid: true}
			corrected = r.CorrectedClaim
		}
		_, err := stmt.ExecContext(ctx, st.ID, i, c.Statement, string(c.Importance), verified,
			score, confidence, issues, corrected, sources)
		if err != nil {
			return fmt.Errorf("inserting claim %d: %w", i, err)
		}
	}
	return nil
}

func insertRefs(ctx context.Context, tx *sql.Tx, st types.ResearchState) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO refs (run_id, idx, url) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing reference insert: %w", err)
	}
	defer stmt.Close()

	for _, ref := range st.References {
		if _, err := stmt.ExecContext(ctx, st.ID, ref.Index, ref.URL); err != nil {
			return fmt.Errorf("inserting reference %d: %w", ref.Index, err)
		}
	}
	return nil
}

// Get loads an archived run. Collections the run never reached stay nil;
// reached but empty ones come back as empty slices.
func (s *Store) Get(ctx context.Context, id string) (types.ResearchState, error) {
	var (
		st                           types.ResearchState
		style, status, stage         string
		warnings                     sql.NullString
		createdAt, started, finished sql.NullString
		optimized, research, report  sql.NullString
		draft, errText               sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, original_query, optimized_query, research_output, fact_check_report,
			content_style, draft_content, status, stage, error, warnings,
			created_at, started_at, finished_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&st.ID, &st.OriginalQuery, &optimized, &research, &report,
		&style, &draft, &status, &stage, &errText, &warnings,
		&createdAt, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ResearchState{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return types.ResearchState{}, fmt.Errorf("querying run %s: %w", id, err)
	}

	st.OptimizedQuery = optimized.String
	st.ResearchOutput = research.String
	st.FactCheckReport = report.String
	st.DraftContent = draft.String
	st.Error = errText.String
	st.ContentStyle = types.ContentStyle(style)
	st.Status = types.Status(status)
	st.Stage = types.Stage(stage)
	if warnings.Valid && warnings.String != "" {
		_ = json.Unmarshal([]byte(warnings.String), &st.Warnings)
	}
	st.CreatedAt = parseTime(createdAt.String)
	st.StartedAt = parseTime(started.String)
	st.FinishedAt = parseTime(finished.String)

	if err := s.loadClaims(ctx, &st); err != nil {
		return types.ResearchState{}, err
	}
	if err := s.loadRefs(ctx, &st); err != nil {
		return types.ResearchState{}, err
	}
	return st, nil
}

func (s *Store) loadClaims(ctx context.Context, st *types.ResearchState) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT statement, importance, verified, reliability_score, confidence_level,
			issues, corrected_claim, sources
		 FROM claims WHERE run_id = ? ORDER BY position`, st.ID)
	if err != nil {
		return fmt.Errorf("querying claims: %w", err)
	}
	defer rows.Close()

	if st.Reached(types.StageExtract) {
		st.Claims = []types.Claim{}
	}
	if st.Reached(types.StageVerify) {
		st.VerificationResults = []types.VerificationResult{}
	}

	for rows.Next() {
		var (
			c                 types.Claim
			importance        string
			verified          int
			score, confidence sql.NullInt64
			issues, sources   sql.NullString
			corrected         sql.NullString
		)
		if err := rows.Scan(&c.Statement, &importance, &verified, &score, &confidence,
			&issues, &corrected, &sources); err != nil {
			return fmt.Errorf("scanning claim: %w", err)
		}
		c.Importance = types.Importance(importance)
		st.Claims = append(st.Claims, c)

		if verified == 0 {
			continue
		}
		r := types.VerificationResult{
			Claim:            c,
			ReliabilityScore: int(score.Int64),
			ConfidenceLevel:  int(confidence.Int64),
			CorrectedClaim:   corrected.String,
		}
		_ = json.Unmarshal([]byte(issues.String), &r.Issues)
		_ = json.Unmarshal([]byte(sources.String), &r.VerificationSources)
		st.VerificationResults = append(st.VerificationResults, r)
	}
	return rows.Err()
}

func (s *Store) loadRefs(ctx context.Context, st *types.ResearchState) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, url FROM refs WHERE run_id = ? ORDER BY idx`, st.ID)
	if err != nil {
		return fmt.Errorf("querying references: %w", err)
	}
	defer rows.Close()

	if st.Reached(types.StageReferences) {
		st.References = []types.Reference{}
	}
	for rows.Next() {
		var ref types.Reference
		if err := rows.Scan(&ref.Index, &ref.URL); err != nil {
			return fmt.Errorf("scanning reference: %w", err)
		}
		st.References = append(st.References, ref)
	}
	return rows.Err()
}

// ListOptions filters List.
type ListOptions struct {
	// Status keeps only runs with this status when set.
	Status types.Status

	// Query keeps runs whose original query contains this text (case-insensitive).
	Query string

	// Limit caps the number of runs returned. Zero uses the default of 20.
	Limit int
}

// Summary is one row of a run listing.
type Summary struct {
	ID            string             `json:"id" yaml:"id"`
	OriginalQuery string             `json:"original_query" yaml:"original_query"`
	ContentStyle  types.ContentStyle `json:"content_style" yaml:"content_style"`
	Status        types.Status       `json:"status" yaml:"status"`
	Claims        int                `json:"claims" yaml:"claims"`
	Verified      int                `json:"verified" yaml:"verified"`

	// MeanReliability averages the scores of verified claims; nil when none
	// were verified.
	MeanReliability *float64  `json:"mean_reliability,omitempty" yaml:"mean_reliability,omitempty"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
}

// List returns archived runs, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(
		`SELECT r.id, r.original_query, r.content_style, r.status, r.created_at,
			COUNT(c.position),
			COALESCE(SUM(CASE WHEN c.verified = 1 AND c.reliability_score >= 0 THEN 1 ELSE 0 END), 0),
			AVG(CASE WHEN c.verified = 1 AND c.reliability_score >= 0 THEN c.reliability_score END)
		FROM runs r
		LEFT JOIN claims c ON c.run_id = r.id
		WHERE 1=1`)
	if opts.Status != "" {
		qb.WriteString(` AND r.status = ?`)
		args = append(args, string(opts.Status))
	}
	if opts.Query != "" {
		qb.WriteString(` AND r.original_query LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(opts.Query)+"%")
	}
	qb.WriteString(` GROUP BY r.id ORDER BY r.created_at DESC, r.id LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum           Summary
			style, status string
			createdAt     sql.NullString
			mean          sql.NullFloat64
		)
		if err := rows.Scan(&sum.ID, &sum.OriginalQuery, &style, &status, &createdAt,
			&sum.Claims, &sum.Verified, &mean); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		sum.ContentStyle = types.ContentStyle(style)
		sum.Status = types.Status(status)
		sum.CreatedAt = parseTime(createdAt.String)
		if mean.Valid {
			v := mean.Float64
			sum.MeanReliability = &v
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes an archived run and its claims and references.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
