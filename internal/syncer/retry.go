package syncer

import (
	"math"
	"time"
)

// RetryPolicy defines exponential backoff parameters for transient remote
// failures.
type RetryPolicy struct {
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NextDelay returns the delay before the next attempt for an update whose
// retry count has just reached retryCount, with clamping.
func (r RetryPolicy) NextDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 3
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(retryCount))
	d := time.Duration(delay)
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}
