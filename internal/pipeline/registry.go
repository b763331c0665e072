// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pdiddy/deep-researcher/pkg/types"
)

// run is one registered research run. state is guarded by the registry lock;
// err is written once, before done is closed.
type run struct {
	state  types.ResearchState
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// registry holds every run the orchestrator knows about, keyed by id.
type registry struct {
	mu   sync.RWMutex
	runs map[string]*run
}

func newRegistry() *registry {
	return &registry{runs: make(map[string]*run)}
}

func (r *registry) add(st types.ResearchState, cancel context.CancelFunc) *run {
	entry := &run{state: st, cancel: cancel, done: make(chan struct{})}
	r.mu.Lock()
	r.runs[st.ID] = entry
	r.mu.Unlock()
	return entry
}

func (r *registry) get(id string) (*run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.runs[id]
	return entry, ok
}

// snapshot returns a deep copy of the run's state.
func (r *registry) snapshot(id string) (types.ResearchState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.runs[id]
	if !ok {
		return types.ResearchState{}, ErrRunNotFound
	}
	return entry.state.Clone(), nil
}

// update mutates the run's state under the write lock. Readers never observe
// a half-applied change.
func (r *registry) update(id string, fn func(*types.ResearchState) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	return fn(&entry.state)
}

// finish records the run's outcome and releases its waiters.
func (r *registry) finish(entry *run, err error) {
	r.mu.Lock()
	entry.err = err
	r.mu.Unlock()
	entry.cancel()
	close(entry.done)
}

// sweep evicts terminal runs that finished before cutoff and returns how many
// were removed. Running runs are never evicted.
func (r *registry) sweep(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, entry := range r.runs {
		if entry.state.Status.IsTerminal() && entry.state.FinishedAt.Before(cutoff) {
			delete(r.runs, id)
			n++
		}
	}
	return n
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}
