package engine

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig controls the retry delay curve.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// DefaultBackoff returns the standard exponential backoff settings.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxDelay:     60 * time.Second,
		Jitter:       true,
	}
}

// Delay computes the delay before attempt n+1, given that attempt n just
// failed (n >= 1): min(initial * multiplier^(n-1), max), then scaled by a
// uniform factor in [0.5, 1.0) when jitter is enabled so retries against a
// recovering receiver do not arrive in lockstep.
func (c BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	if max := float64(c.MaxDelay); d > max {
		d = max
	}
	if c.Jitter {
		d *= 0.5 + rand.Float64()*0.5
	}
	return time.Duration(d)
}
