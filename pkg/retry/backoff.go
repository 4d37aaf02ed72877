package retry

import (
	"math"
	"time"
)

// Backoff computes the delay before a given attempt
type Backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
}

func NewBackoff(policy Policy) *Backoff {
	return &Backoff{
		initial:    policy.InitialDelay,
		max:        policy.MaxDelay,
		multiplier: policy.Multiplier,
	}
}

// Calculate returns the delay before attempt (1-based)
func (b *Backoff) Calculate(attempt int) time.Duration {
	if attempt <= 1 {
		return b.initial
	}
	d := float64(b.initial) * math.Pow(b.multiplier, float64(attempt-1))
	if d > float64(b.max) {
		return b.max
	}
	return time.Duration(d)
}
