package engine

import (
	"testing"
	"time"
)

func TestBackoffDelayWithoutJitter(t *testing.T) {
	cfg := BackoffConfig{
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxDelay:     60 * time.Second,
		Jitter:       false,
	}

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"attempt below one clamps", 0, time.Second},
		{"first failure", 1, time.Second},
		{"second failure", 2, 2 * time.Second},
		{"third failure", 3, 4 * time.Second},
		{"sixth failure", 6, 32 * time.Second},
		{"capped at max", 7, 60 * time.Second},
		{"stays capped", 20, 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestBackoffDelayJitterBounds(t *testing.T) {
	cfg := DefaultBackoff()

	for attempt := 1; attempt <= 8; attempt++ {
		base := float64(cfg.InitialDelay) * pow(cfg.Multiplier, attempt-1)
		if max := float64(cfg.MaxDelay); base > max {
			base = max
		}
		for i := 0; i < 100; i++ {
			// One nanosecond of slack for the float-to-duration truncation.
			d := float64(cfg.Delay(attempt))
			if d < base*0.5-1 || d >= base+1 {
				t.Fatalf("Delay(%d) = %v, want within [%v, %v)", attempt,
					time.Duration(d), time.Duration(base*0.5), time.Duration(base))
			}
		}
	}
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}
