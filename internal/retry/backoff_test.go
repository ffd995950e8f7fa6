package retry

import (
	"testing"
	"time"
)

func TestCalculateBackoffFirstAttemptWithinJitter(t *testing.T) {
	for i := 0; i < 500; i++ {
		got := CalculateBackoff(0, 1000*time.Millisecond, 30000*time.Millisecond, 2)
		if got < 800*time.Millisecond || got > 1200*time.Millisecond {
			t.Fatalf("attempt 0 backoff %v outside ±20%% of 1s", got)
		}
	}
}

func TestCalculateBackoffClampsToMax(t *testing.T) {
	for i := 0; i < 500; i++ {
		got := CalculateBackoff(10, 1000*time.Millisecond, 30000*time.Millisecond, 2)
		if got > 30000*time.Millisecond {
			t.Fatalf("attempt 10 backoff %v exceeds max", got)
		}
		if got < 24000*time.Millisecond {
			t.Fatalf("attempt 10 backoff %v below jittered max", got)
		}
	}
}

func TestCalculateBackoffJitterBounds(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		sample  float64
		want    time.Duration
	}{
		{name: "low edge", attempt: 0, sample: 0, want: 800 * time.Millisecond},
		{name: "midpoint", attempt: 0, sample: 0.5, want: time.Second},
		{name: "grows", attempt: 2, sample: 0.5, want: 4 * time.Second},
		{name: "high edge clamped", attempt: 20, sample: 1, want: 30 * time.Second},
		{name: "negative attempt", attempt: -3, sample: 0.5, want: time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateBackoff(tt.attempt, time.Second, 30*time.Second, 2, tt.sample)
			if got != tt.want {
				t.Fatalf("calculateBackoff = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateBackoffZeroInitial(t *testing.T) {
	if got := CalculateBackoff(3, 0, time.Second, 2); got != 0 {
		t.Fatalf("expected zero delay, got %v", got)
	}
}
