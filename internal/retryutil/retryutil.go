// Package retryutil centralizes the engine's retry/backoff policy for
// transient remote-store errors: 500ms initial delay, factor 2, capped at
// 30s, at most 5 attempts. Built on github.com/sethvargo/go-retry so the
// backoff math (exponential growth, capping) is not hand-rolled a second
// time in this repo — the teacher's internal/graph/client.go computed the
// same curve by hand before any retry library was promoted to direct use.
package retryutil

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
	maxAttempts    = 5
)

// Policy builds the standard backoff sequence used for every remote-store
// call the engine retries.
func Policy() retry.Backoff {
	b := retry.NewExponential(initialBackoff)
	b = retry.WithCappedDuration(maxBackoff, b)
	b = retry.WithMaxRetries(maxAttempts-1, b)

	return b
}

// Transient marks err as retryable. Classification callers (internal/notion)
// wrap transient remote errors with this before returning them from the
// function passed to Do.
func Transient(err error) error {
	if err == nil {
		return nil
	}

	return retry.RetryableError(err)
}

// Do runs fn under the standard policy, retrying while fn returns a
// transient error. On exhaustion it returns the last error, unwrapped from
// the retry package's internal wrapper so callers can keep using errors.Is
// against the engine's own sentinel errors.
func Do(ctx context.Context, fn func(ctx context.Context) error) error {
	// retry.Do unwraps RetryableError internally on the final attempt, so the
	// error returned here already satisfies errors.Is against whatever
	// sentinel fn wrapped.
	if err := retry.Do(ctx, Policy(), fn); err != nil {
		return fmt.Errorf("retryutil: exhausted after %d attempts: %w", maxAttempts, err)
	}

	return nil
}
