package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// JitterFraction is the symmetric jitter applied to every computed delay.
const JitterFraction = 0.2

// CalculateBackoff returns the delay before retry number attempt (zero based).
// The base delay grows as initial*multiplier^attempt, is clamped to max, then
// jittered by up to ±20% and clamped to max again.
func CalculateBackoff(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	return calculateBackoff(attempt, initial, max, multiplier, rand.Float64())
}

func calculateBackoff(attempt int, initial, max time.Duration, multiplier float64, sample float64) time.Duration {
	if initial <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if multiplier < 1 {
		multiplier = 1
	}
	base := float64(initial) * math.Pow(multiplier, float64(attempt))
	if max > 0 && (base > float64(max) || math.IsInf(base, 1) || math.IsNaN(base)) {
		base = float64(max)
	}
	jitter := (sample*2 - 1) * JitterFraction * base
	delay := base + jitter
	if max > 0 && delay > float64(max) {
		delay = float64(max)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
