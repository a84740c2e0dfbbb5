package pulse

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
)

// Retryer wraps network calls in bounded retry with linear backoff.
// Every Harbor call in this package routes through one Retryer so retry
// policy lives in exactly one place.
type Retryer struct {
	// MaxAttempts bounds total attempts, including the first.
	MaxAttempts int
	// BaseDelay is multiplied by the attempt number before each retry:
	// linear rather than exponential keeps worst-case drain latency
	// predictable.
	BaseDelay time.Duration
}

// NewRetryer creates a retryer. maxAttempts < 1 is treated as 1.
func NewRetryer(maxAttempts int, baseDelay time.Duration) *Retryer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retryer{MaxAttempts: maxAttempts, BaseDelay: baseDelay}
}

// Do runs op, retrying failures classified as transient. Non-transient
// errors (permanent rejections, local storage failures) propagate
// immediately without retry. After MaxAttempts the last error is returned;
// a terminal failure is never swallowed.
func (r *Retryer) Do(ctx context.Context, op func(context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(r.MaxAttempts-1), linearBackoff(r.BaseDelay))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// linearBackoff waits BaseDelay * n before the nth retry.
func linearBackoff(base time.Duration) retry.Backoff {
	var attempt uint64
	return retry.BackoffFunc(func() (time.Duration, bool) {
		n := atomic.AddUint64(&attempt, 1)
		return base * time.Duration(n), false
	})
}
