package tasks

import (
	"math"
	"time"

	"github.com/siprems/backend-go/internal/domain"
)

const maxBackoff = 600 * time.Second

// RetryPolicy is applied by the orchestrator around a task function. Only
// transient failures are retried; expected conditions like insufficient
// data or an unknown product fail immediately.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// DefaultRetryPolicy backs off exponentially, capped at 10 minutes:
// min(2^attempt, 600) seconds.
func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     ExponentialBackoff,
	}
}

// ExponentialBackoff returns min(2^attempt, 600) seconds for attempt >= 0.
func ExponentialBackoff(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

// ShouldRetry reports whether a failed attempt (0-based) gets another run.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	return domain.IsTransient(err) && attempt+1 < p.MaxAttempts
}
