// Package retry is the single place retry policy lives. Phase handlers never
// retry internally; the orchestrator wraps each phase in Do with a budget
// appropriate for that phase.
package retry

import (
	"context"
	"time"
)

// Options bounds one retried operation.
type Options struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Do runs op up to Attempts times. The delay before retry i (0-indexed) is
// min(MaxDelay, BaseDelay<<i); there is no delay after the final attempt.
// On exhaustion the last error is returned verbatim. The backoff sleep is
// cancellable through ctx. A non-positive Attempts still runs op once; Do
// never succeeds without invoking it.
func Do(ctx context.Context, opts Options, op func(context.Context) error) error {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if i < attempts-1 {
			if err := sleep(ctx, delayFor(opts, i)); err != nil {
				return lastErr
			}
		}
	}
	return lastErr
}

func delayFor(opts Options, attempt int) time.Duration {
	delay := opts.BaseDelay << uint(attempt)
	if delay > opts.MaxDelay || delay <= 0 {
		return opts.MaxDelay
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
