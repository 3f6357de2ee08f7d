package model

import "time"

// RetryPolicy defines how a failed stage dispatch is retried.
type RetryPolicy struct {
	MaxAttempts       int           `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	Jitter            bool          `json:"jitter"`
}

// DefaultRetryPolicy runs a stage exactly once.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:       1,
	InitialDelay:      time.Second,
	MaxDelay:          30 * time.Second,
	BackoffMultiplier: 2.0,
}

// Delay returns the wait before the given retry attempt (attempt 1 is the
// first retry), growing exponentially and capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	mult := p.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= mult
		if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	d := time.Duration(delay)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
