package failure

import (
	"math"
	"time"
)

// RetryStrategy names how a failure category should be retried.
type RetryStrategy string

const (
	RetryNone        RetryStrategy = "none"
	RetryImmediate   RetryStrategy = "immediate"
	RetryLinear      RetryStrategy = "linear-backoff"
	RetryExponential RetryStrategy = "exponential-backoff"
	RetrySuppress    RetryStrategy = "suppression"
)

// NoRetry is the sentinel RetryWait returns once retries are exhausted or
// the category never retries.
const NoRetry time.Duration = -1

// retryPolicy is one category's backoff schedule.
type retryPolicy struct {
	Strategy   RetryStrategy
	Initial    time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	MaxRetries int
}

// The policy table is deliberate heuristics tuned in production; keep the
// constants as-is rather than re-deriving them.
var retryPolicies = map[Category]retryPolicy{
	CategoryTimeout:          {RetryLinear, 1 * time.Second, 1.5, 10 * time.Second, 3},
	CategoryNetworkError:     {RetryExponential, 1 * time.Second, 2, 30 * time.Second, 4},
	CategoryRateLimited:      {RetryExponential, 5 * time.Second, 2, 5 * time.Minute, 5},
	CategoryAuthRequired:     {Strategy: RetrySuppress},
	CategoryServerError:      {RetryExponential, 2 * time.Second, 2, time.Minute, 3},
	CategoryParseError:       {Strategy: RetryNone},
	CategoryWrongEndpoint:    {Strategy: RetryNone},
	CategoryValidationFailed: {RetryImmediate, 0, 1, 0, 1},
	CategoryContentTooShort:  {RetryImmediate, 0, 1, 0, 1},
	CategoryUnknown:          {RetryLinear, 1 * time.Second, 1.5, 10 * time.Second, 2},
}

func policyFor(cat Category) retryPolicy {
	if p, ok := retryPolicies[cat]; ok {
		return p
	}
	return retryPolicies[CategoryUnknown]
}

// RetryWait returns how long to wait before the given attempt (1-based):
// initial * multiplier^(attempt-1), capped at the category's max delay.
// It returns NoRetry once attempt exceeds the category's retry budget, and
// always for categories that never retry.
func RetryWait(cat Category, attempt int) time.Duration {
	p := policyFor(cat)

	if p.Strategy == RetryNone || p.Strategy == RetrySuppress {
		return NoRetry
	}
	if attempt < 1 || attempt > p.MaxRetries {
		return NoRetry
	}
	if p.Strategy == RetryImmediate {
		return 0
	}

	wait := time.Duration(float64(p.Initial) * math.Pow(p.Multiplier, float64(attempt-1)))
	if wait > p.MaxDelay {
		wait = p.MaxDelay
	}
	return wait
}

// MaxRetries exposes the category's retry budget.
func MaxRetries(cat Category) int {
	return policyFor(cat).MaxRetries
}
