// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs research queries through a fixed sequence of stages:
// query optimization, research gathering, claim extraction, concurrent claim
// verification, reference collection, fact-check reporting and drafting. The
// Orchestrator owns every ResearchState; stages receive snapshots and return
// deltas that the orchestrator merges in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-researcher/internal/llm"
	"github.com/pdiddy/deep-researcher/internal/websearch"
	"github.com/pdiddy/deep-researcher/pkg/types"
)

// archiveTimeout bounds a single Archiver.Save call.
const archiveTimeout = 30 * time.Second

// Archiver persists finished runs.
type Archiver interface {
	Save(ctx context.Context, state types.ResearchState) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithArchiver hands every terminal state to a.
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

// WithClock replaces time.Now for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator executes research runs and keeps their states queryable.
// It is safe for concurrent use.
type Orchestrator struct {
	completion llm.Client
	search     websearch.Client
	cfg        types.PipelineConfig
	archiver   Archiver
	now        func() time.Time
	log        *zap.Logger
	runs       *registry
}

// New returns an Orchestrator using the given collaborators. Zero fields of
// cfg take their defaults.
func New(completion llm.Client, search websearch.Client, cfg types.PipelineConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		completion: completion,
		search:     search,
		cfg:        cfg.WithDefaults(),
		now:        time.Now,
		log:        zap.NewNop(),
		runs:       newRegistry(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the effective pipeline configuration.
func (o *Orchestrator) Config() types.PipelineConfig {
	return o.cfg
}

// Start registers a pending run and executes it in the background. The run
// outlives ctx; only Cancel stops it. Values carried by ctx remain visible.
func (o *Orchestrator) Start(ctx context.Context, query string, style types.ContentStyle) (string, error) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	entry, err := o.register(query, style, cancel)
	if err != nil {
		cancel()
		return "", err
	}

	go func() {
		err := o.execute(runCtx, entry.state.ID)
		o.runs.finish(entry, err)
	}()
	return entry.state.ID, nil
}

// Run executes a research run to completion in the calling goroutine and
// returns its final state. Cancelling ctx cancels the run. A failed run
// returns the partial state together with a *StageError.
func (o *Orchestrator) Run(ctx context.Context, query string, style types.ContentStyle) (types.ResearchState, error) {
	runCtx, cancel := context.WithCancel(ctx)
	entry, err := o.register(query, style, cancel)
	if err != nil {
		cancel()
		return types.ResearchState{}, err
	}

	err = o.execute(runCtx, entry.state.ID)
	o.runs.finish(entry, err)
	st, _ := o.runs.snapshot(entry.state.ID)
	return st, err
}

// State returns a snapshot of the run. It may be called at any time,
// including while the run is in progress.
func (o *Orchestrator) State(id string) (types.ResearchState, error) {
	return o.runs.snapshot(id)
}

// Cancel asks a run to stop. The run fails with ErrCancelled at its next
// stage boundary. Cancelling a finished run has no effect.
func (o *Orchestrator) Cancel(id string) error {
	entry, ok := o.runs.get(id)
	if !ok {
		return ErrRunNotFound
	}
	entry.cancel()
	return nil
}

// Wait blocks until the run is terminal or ctx is done. It returns the final
// state and, for a failed run, the run's *StageError.
func (o *Orchestrator) Wait(ctx context.Context, id string) (types.ResearchState, error) {
	entry, ok := o.runs.get(id)
	if !ok {
		return types.ResearchState{}, ErrRunNotFound
	}
	select {
	case <-entry.done:
	case <-ctx.Done():
		st, _ := o.runs.snapshot(id)
		return st, ctx.Err()
	}

	o.runs.mu.RLock()
	st, err := entry.state.Clone(), entry.err
	o.runs.mu.RUnlock()
	return st, err
}

// Sweep evicts terminal runs that finished more than olderThan ago and
// returns how many were removed.
func (o *Orchestrator) Sweep(olderThan time.Duration) int {
	n := o.runs.sweep(o.now().Add(-olderThan))
	if n > 0 {
		o.log.Info("swept finished runs", zap.Int("count", n))
	}
	return n
}

// Janitor calls Sweep every interval until ctx is done.
func (o *Orchestrator) Janitor(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Sweep(retention)
		}
	}
}

func (o *Orchestrator) register(query string, style types.ContentStyle, cancel context.CancelFunc) (*run, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if style == "" {
		style = types.StyleReport
	}
	if !style.Valid() {
		return nil, fmt.Errorf("unknown content style %q", style)
	}
	st := types.NewResearchState(uuid.NewString(), query, style, o.now())
	return o.runs.add(st, cancel), nil
}

// execute drives one run through every stage. The status moves to running
// once, before the first stage, and ends completed or failed.
func (o *Orchestrator) execute(ctx context.Context, id string) error {
	log := o.log.With(zap.String("run_id", id))

	err := o.runs.update(id, func(s *types.ResearchState) error {
		s.Status = types.StatusRunning
		s.StartedAt = o.now()
		return nil
	})
	if err != nil {
		return err
	}
	log.Info("research run started")

	r := &runner{
		completion: o.completion,
		search:     o.search,
		cfg:        o.cfg,
		policy:     PolicyFrom(o.cfg.Retry),
	}

	for _, stage := range stageOrder {
		if err := ctx.Err(); err != nil {
			return o.fail(ctx, id, stage, fmt.Errorf("%w: %w", ErrCancelled, err))
		}

		in, err := o.runs.snapshot(id)
		if err != nil {
			return err
		}

		r.log = log.With(zap.String("stage", string(stage)))
		began := o.now()
		d, err := r.run(ctx, stage, in)
		if err != nil {
			if ctx.Err() != nil && !errors.Is(err, ErrCancelled) {
				err = fmt.Errorf("%w: %w", ErrCancelled, err)
			}
			return o.fail(ctx, id, stage, err)
		}
		if err := o.runs.update(id, d.apply); err != nil {
			return o.fail(ctx, id, stage, err)
		}
		r.log.Debug("stage complete", zap.Duration("elapsed", o.now().Sub(began)), zap.Int("warnings", len(d.Warnings)))
	}

	var final types.ResearchState
	_ = o.runs.update(id, func(s *types.ResearchState) error {
		s.Status = types.StatusCompleted
		s.FinishedAt = o.now()
		final = s.Clone()
		return nil
	})
	log.Info("research run completed", zap.Int("claims", len(final.Claims)), zap.Int("references", len(final.References)))
	o.archive(ctx, log, final)
	return nil
}

// fail marks the run failed and returns the caller-visible StageError.
func (o *Orchestrator) fail(ctx context.Context, id string, stage types.Stage, cause error) error {
	var stageErr *StageError
	_ = o.runs.update(id, func(s *types.ResearchState) error {
		s.Status = types.StatusFailed
		s.Error = cause.Error()
		s.FinishedAt = o.now()
		stageErr = &StageError{Stage: stage, LastStage: s.Stage, Partial: s.Clone(), Err: cause}
		return nil
	})
	log := o.log.With(zap.String("run_id", id))
	if stageErr == nil {
		return cause
	}
	log.Error("research run failed", zap.String("stage", string(stage)), zap.Error(cause))
	o.archive(ctx, log, stageErr.Partial)
	return stageErr
}

// archive saves a terminal state. Failures are logged and never change the
// run's outcome.
func (o *Orchestrator) archive(ctx context.Context, log *zap.Logger, st types.ResearchState) {
	if o.archiver == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if err := o.archiver.Save(saveCtx, st); err != nil {
		log.Warn("archiving research run failed", zap.Error(err))
	}
}
