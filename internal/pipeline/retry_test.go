// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-researcher/internal/llm"
	"github.com/pdiddy/deep-researcher/internal/websearch"
	"github.com/pdiddy/deep-researcher/pkg/types"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, CallTimeout: time.Second}
}

func TestBackoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: 500 * time.Millisecond, MaxDelay: 3 * time.Second}
	assert.Equal(t, 500*time.Millisecond, p.Backoff(1))
	assert.Equal(t, time.Second, p.Backoff(2))
	assert.Equal(t, 2*time.Second, p.Backoff(3))
	assert.Equal(t, 3*time.Second, p.Backoff(4))
	assert.Equal(t, 3*time.Second, p.Backoff(10))
}

func TestPolicyFrom(t *testing.T) {
	p := PolicyFrom(types.DefaultPipelineConfig().Retry)
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, p.BaseDelay)
	assert.Equal(t, 8*time.Second, p.MaxDelay)
	assert.Equal(t, 60*time.Second, p.CallTimeout)
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := retry(context.Background(), fastPolicy(), zap.NewNop(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("%w: status 503", llm.ErrUnavailable)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := retry(context.Background(), fastPolicy(), zap.NewNop(), "search", func(context.Context) error {
		calls++
		return websearch.ErrUnavailable
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, websearch.ErrUnavailable)
	assert.Equal(t, 3, calls)
}

func TestRetry_DoesNotRetryFatalOrMalformed(t *testing.T) {
	for _, cause := range []error{errors.New("unauthorized"), llm.ErrMalformed, ErrEmptyCompletion} {
		calls := 0
		err := retry(context.Background(), fastPolicy(), zap.NewNop(), "op", func(context.Context) error {
			calls++
			return cause
		})
		assert.ErrorIs(t, err, cause)
		assert.NotErrorIs(t, err, ErrRetriesExhausted)
		assert.Equal(t, 1, calls)
	}
}

func TestRetry_PerCallTimeoutIsTransient(t *testing.T) {
	p := fastPolicy()
	p.CallTimeout = 5 * time.Millisecond
	calls := 0
	err := retry(context.Background(), p, zap.NewNop(), "slow", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_StopsOnParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy()
	p.BaseDelay, p.MaxDelay = time.Hour, time.Hour

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- retry(ctx, p, zap.NewNop(), "op", func(context.Context) error {
			calls++
			return llm.ErrUnavailable
		})
	}()
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, calls, 1)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Class
	}{
		{nil, Fatal},
		{errors.New("boom"), Fatal},
		{context.Canceled, Fatal},
		{fmt.Errorf("wrapped: %w", llm.ErrUnavailable), Transient},
		{websearch.ErrUnavailable, Transient},
		{context.DeadlineExceeded, Transient},
		{fmt.Errorf("decode: %w", llm.ErrMalformed), Malformed},
		{ErrEmptyCompletion, Malformed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
	assert.Equal(t, "transient", Transient.String())
	assert.Equal(t, "malformed", Malformed.String())
	assert.Equal(t, "fatal", Fatal.String())
}

func TestStageError(t *testing.T) {
	cause := errors.New("invalid api key")
	err := &StageError{Stage: types.StageGather, Err: cause}
	assert.Equal(t, "stage gather_research failed (last completed stage: none): invalid api key", err.Error())
	assert.ErrorIs(t, err, cause)
}
