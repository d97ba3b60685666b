// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy bounds how engine operations are retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first one.
	MaxAttempts int
	// BaseBackoff is the delay before the second attempt; it doubles after each retry.
	BaseBackoff time.Duration
}

// DefaultRetryPolicy is used for session container runs and image pulls.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseBackoff: 500 * time.Millisecond}

// RetryWithBackoff retries op up to policy.MaxAttempts times with exponential backoff.
// The wait between attempts is interruptible by ctx.
//
// op returns (shouldRetry bool, err error). If shouldRetry is false, err is
// returned immediately (nil on success, non-nil on permanent failure).
// On retry exhaustion, the last error is returned.
func RetryWithBackoff(ctx context.Context, policy RetryPolicy, op func(attempt int) (retry bool, err error)) error {
	attempts := max(policy.MaxAttempts, 1)

	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			timer := time.NewTimer(policy.BaseBackoff * time.Duration(1<<(attempt-1)))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry aborted: %w", ctx.Err())
			case <-timer.C:
			}
		}

		retry, err := op(attempt)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// RetryTransient runs op under policy, retrying only errors IsTransientError accepts.
func RetryTransient(ctx context.Context, policy RetryPolicy, op func() error) error {
	return RetryWithBackoff(ctx, policy, func(int) (bool, error) {
		err := op()
		return IsTransientError(err), err
	})
}
