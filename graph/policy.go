package graph

import (
	"math/rand"
	"time"
)

// NodePolicy overrides engine defaults for a single node.
type NodePolicy struct {
	// Timeout caps one execution attempt. 0 falls back to the
	// engine's NodeTimeout.
	Timeout time.Duration

	// Retry enables automatic retries for failures the Retryable
	// predicate accepts. Nil means a single attempt.
	Retry *RetryPolicy
}

// RetryPolicy configures retry behavior for transient node failures.
// Delays grow exponentially from BaseDelay, capped at MaxDelay, with
// jitter to spread out concurrent retries.
type RetryPolicy struct {
	// MaxAttempts counts the initial attempt. Must be >= 1.
	MaxAttempts int

	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration

	// MaxDelay caps the backoff. 0 means uncapped.
	MaxDelay time.Duration

	// Retryable decides whether a given error is worth retrying.
	// Nil means nothing is retried.
	Retryable func(error) bool
}

// Validate reports whether the policy is internally consistent.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// backoff computes the wait before retry number attempt (0-based):
// min(base * 2^attempt, max) + jitter(0, base).
func backoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * (1 << attempt)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	}
	return delay + jitter
}
