package binding

import (
	"context"
	"errors"
	"time"

	"github.com/castingclouds/circuit-breaker-sub001/pkg/workflow"
)

// WithRetry wraps call with workflow.RetryPolicy's backoff schedule,
// retrying only when the returned error's Kind is retryable (§7) and
// listed in policy.RetryOn, or RetryOn is empty (retry every retryable
// kind). A nil policy means no retry: call runs exactly once.
func WithRetry(ctx context.Context, policy *workflow.RetryPolicy, call func(ctx context.Context) (Outcome, error)) (Outcome, error) {
	if policy == nil || policy.MaxAttempts <= 1 {
		return call(ctx)
	}

	var last error
	delay := policy.BaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		out, err := call(ctx)
		if err == nil {
			return out, nil
		}
		last = err

		if attempt == policy.MaxAttempts || !shouldRetry(err, policy) {
			return Outcome{}, last
		}

		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-time.After(delay):
		}
		delay = nextDelay(policy, delay)
	}
	return Outcome{}, last
}

func shouldRetry(err error, policy *workflow.RetryPolicy) bool {
	werr := extractWorkflowError(err)
	if werr == nil {
		return false
	}
	if !werr.Retryable {
		return false
	}
	if len(policy.RetryOn) == 0 {
		return true
	}
	for _, k := range policy.RetryOn {
		if string(werr.Kind) == k {
			return true
		}
	}
	return false
}

func extractWorkflowError(err error) *workflow.Error {
	var werr *workflow.Error
	if errors.As(err, &werr) {
		return werr
	}
	return nil
}

// nextDelay advances delay per the policy's backoff algorithm.
func nextDelay(policy *workflow.RetryPolicy, delay time.Duration) time.Duration {
	switch policy.Backoff {
	case workflow.BackoffFixed:
		return delay
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

// WithTimeout bounds call by timeout, if non-zero, deriving a child
// context cancelled on expiry (§5 suspension points: every binding
// call accepts a deadline threaded from the originating request).
func WithTimeout(ctx context.Context, timeout time.Duration, call func(ctx context.Context) (Outcome, error)) (Outcome, error) {
	if timeout <= 0 {
		return call(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := call(cctx)
		done <- result{out, err}
	}()

	select {
	case <-cctx.Done():
		return Outcome{}, workflow.New(workflow.KindTimeout, "binding call exceeded deadline", cctx.Err())
	case r := <-done:
		return r.out, r.err
	}
}
