package worker

import (
	"math"
	"time"
)

// RetryPolicy shapes the backoff between attempts of a failed sync task.
// Zero-valued fields fall back to one second doubling per attempt.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NextDelay computes the wait before the given 1-based attempt. The delay
// grows by BackoffFactor each attempt and is clamped to MaxDelay when set.
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
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = initial
	}
	return d
}
