// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/pdiddy/deep-researcher/internal/llm"
	"github.com/pdiddy/deep-researcher/internal/websearch"
	"github.com/pdiddy/deep-researcher/pkg/types"
)

var (
	ErrEmptyQuery            = errors.New("query is empty")
	ErrRunNotFound           = errors.New("research run not found")
	ErrCancelled             = errors.New("research run cancelled")
	ErrClaimExtractionFailed = errors.New("claim extraction failed")
	ErrRetriesExhausted      = errors.New("retries exhausted")
	ErrEmptyCompletion       = errors.New("completion returned no text")

	errStageOrder = errors.New("stage output out of order")
	errTerminal   = errors.New("research run already finished")
)

// Class buckets errors by how the pipeline reacts to them.
type Class int

const (
	// Fatal errors are not retried.
	Fatal Class = iota
	// Transient errors (timeouts, rate limits, transport failures) are retried
	// with backoff.
	Transient
	// Malformed errors come from structured output that failed validation;
	// the call is repeated once with a stricter prompt.
	Malformed
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Malformed:
		return "malformed"
	}
	return "fatal"
}

// Classify maps an error from a completion or search call to its Class.
func Classify(err error) Class {
	if err == nil {
		return Fatal
	}
	if errors.Is(err, llm.ErrMalformed) || errors.Is(err, ErrEmptyCompletion) {
		return Malformed
	}
	if errors.Is(err, llm.ErrUnavailable) || errors.Is(err, websearch.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient
	}
	return Fatal
}

// StageError is returned for a run that failed. It names the failing stage
// and the last stage that completed, and carries the partial state as it was
// when the run stopped.
type StageError struct {
	Stage     types.Stage
	LastStage types.Stage
	Partial   types.ResearchState
	Err       error
}

func (e *StageError) Error() string {
	last := string(e.LastStage)
	if last == "" {
		last = "none"
	}
	return fmt.Sprintf("stage %s failed (last completed stage: %s): %v", e.Stage, last, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
