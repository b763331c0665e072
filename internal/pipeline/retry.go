// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-researcher/pkg/types"
)

// RetryPolicy bounds the attempts made at one external call site.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CallTimeout time.Duration
}

// PolicyFrom converts configuration into a RetryPolicy.
func PolicyFrom(cfg types.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		CallTimeout: cfg.CallTimeout,
	}
}

// Backoff returns the delay before retry number n (n >= 1): BaseDelay doubled
// n-1 times, capped at MaxDelay.
func (p RetryPolicy) Backoff(n int) time.Duration {
	d := time.Duration(math.Pow(2, float64(n-1))) * p.BaseDelay
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// retry calls fn until it succeeds, fails with a non-transient error, or the
// attempt cap is reached. Each attempt runs under its own CallTimeout, so a
// hung call surfaces as context.DeadlineExceeded and is retried. Cancellation
// of ctx stops the loop immediately.
func retry(ctx context.Context, p RetryPolicy, log *zap.Logger, op string, fn func(context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(p.Backoff(attempt - 1)):
			}
		}

		err := callOnce(ctx, p.CallTimeout, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		if Classify(err) != Transient {
			return fmt.Errorf("%s: %w", op, err)
		}

		lastErr = err
		log.Warn("transient failure",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))
	}
	return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrRetriesExhausted, attempts, lastErr)
}

func callOnce(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}
