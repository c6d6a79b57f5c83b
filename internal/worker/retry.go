package worker

import (
	"math"
	"time"
)

// RetryPolicy is an exponential backoff schedule for failed deliveries.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy backs off 2s, 4s, 8s… up to a minute.
func DefaultRetryPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:    maxRetries,
		InitialDelay:  2 * time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2,
	}
}

// Exhausted reports whether a job that already failed attempts times is done.
func (r RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= r.MaxRetries
}

// NextDelay is the wait before retry number attempt (1-based).
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	initial := r.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}
	if attempt < 1 {
		attempt = 1
	}

	d := time.Duration(float64(initial) * math.Pow(factor, float64(attempt-1)))
	switch {
	case r.MaxDelay > 0 && d > r.MaxDelay:
		return r.MaxDelay
	case d <= 0:
		return initial
	}
	return d
}
