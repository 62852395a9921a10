package dispatcher

import (
	"context"
	"time"

	"github.com/castingclouds/circuit-breaker-sub001/pkg/workflow"
)

// retryDispatch runs call under policy's backoff schedule, retrying
// only while err is a workflow.KindStoreError, matching the transient-
// store-error retry path of §4.3's failure taxonomy. Shares its
// backoff arithmetic with pkg/binding.WithRetry but operates over a
// plain error instead of binding.Outcome, since dispatcher actions
// have no output payload to thread through retries.
func retryDispatch(ctx context.Context, policy workflow.RetryPolicy, call func(ctx context.Context) error) error {
	if policy.MaxAttempts <= 1 {
		return call(ctx)
	}
	delay := policy.BaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var last error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := call(ctx)
		if err == nil {
			return nil
		}
		last = err
		if attempt == policy.MaxAttempts || !workflow.IsKind(err, workflow.KindStoreError) {
			return last
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = nextDelay(policy, delay)
	}
	return last
}

func nextDelay(policy workflow.RetryPolicy, delay time.Duration) time.Duration {
	switch policy.Backoff {
	case workflow.BackoffLinear:
		return delay + policy.BaseDelay
	case workflow.BackoffExponential:
		mult := policy.Multiplier
		if mult <= 0 {
			mult = 2
		}
		return time.Duration(float64(delay) * mult)
	default:
		return delay
	}
}
