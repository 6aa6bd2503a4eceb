// Package retry implements the orchestrator's retry & backoff engine:
// bounded exponential backoff with jitter around a single provider
// call, honouring classifier verdicts and retry hints, and reporting
// every outcome to a circuit breaker.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/limmutable/orchestrator/errclass"
	"github.com/limmutable/orchestrator/orcherr"
	"go.uber.org/zap"
)

// Breaker is the subset of circuitbreaker.Breaker the retry engine needs.
// Kept as an interface so tests can substitute a fake without importing
// the circuitbreaker package.
type Breaker interface {
	OnSuccess()
	OnFailure()
}

// Policy configures one call-site's retry behaviour.
type Policy struct {
	MaxAttempts       int           // 1-5
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	JitterMax         time.Duration
	PerAttemptTimeout time.Duration
	RespectRetryAfter bool
	OnRetry           func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy gives sane out-of-the-box retry behaviour: three
// attempts, 1s-30s exponential backoff, up to 250ms of jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		BackoffMin:        1 * time.Second,
		BackoffMax:        30 * time.Second,
		JitterMax:         250 * time.Millisecond,
		PerAttemptTimeout: 30 * time.Second,
		RespectRetryAfter: true,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.MaxAttempts > 5 {
		p.MaxAttempts = 5
	}
	if p.BackoffMin <= 0 {
		p.BackoffMin = time.Second
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = 30 * time.Second
	}
	return p
}

// Do executes fn, retrying per policy. It reports one on_failure per
// failed attempt and one on_success on the attempt that succeeds, to
// breaker (which may be nil, e.g. for a bare connectivity check that
// bypasses the breaker).
//
// It never swallows CRITICAL or PERMANENT errors: only a TRANSIENT
// classification (and attempts remaining) triggers another attempt.
func Do[T any](ctx context.Context, policy Policy, breaker Breaker, logger *zap.Logger, fn func(context.Context) (T, error)) (T, error) {
	policy = policy.normalized()
	if logger == nil {
		logger = zap.NewNop()
	}

	var zero T
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if policy.PerAttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.PerAttemptTimeout)
		}
		result, err := fn(attemptCtx)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			if breaker != nil {
				breaker.OnSuccess()
			}
			return result, nil
		}

		lastErr = err
		if breaker != nil {
			breaker.OnFailure()
		}

		cat := errclass.Classify(err)
		if !cat.Retryable() || attempt == policy.MaxAttempts {
			return zero, err
		}

		wait := nextDelay(policy, attempt, err)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err, wait)
		}
		logger.Debug("retrying provider call",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.MaxAttempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
	}

	return zero, lastErr
}

func nextDelay(policy Policy, attempt int, err error) time.Duration {
	if policy.RespectRetryAfter {
		if hint, ok := errclass.RetryAfter(err); ok {
			return hint
		}
	}

	base := float64(policy.BackoffMin) * math.Pow(2, float64(attempt-1))
	if base > float64(policy.BackoffMax) {
		base = float64(policy.BackoffMax)
	}
	if policy.JitterMax > 0 {
		base += rand.Float64() * float64(policy.JitterMax)
	}
	return time.Duration(base)
}

// Category re-exports orcherr.Category for callers that only import
// retry and need to inspect why a call gave up.
type Category = orcherr.Category
