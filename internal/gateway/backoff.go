// ABOUTME: Exponential reconnect backoff with multiplicative jitter
// ABOUTME: Computes the wait before the next connection attempt

package gateway

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff shapes the delay between failed connection attempts.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter spreads each delay by up to +/- Jitter of its value, in [0, 1].
	Jitter float64
}

// Delay returns the wait before attempt, counting from 1. rng may be nil,
// which disables jitter.
func (b Backoff) Delay(attempt int, rng *rand.Rand) time.Duration {
	if b.Initial <= 0 {
		return 0
	}

	delay := float64(b.Initial)
	if attempt > 1 && b.Multiplier > 1 {
		delay *= math.Pow(b.Multiplier, float64(attempt-1))
	}
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	if rng != nil && b.Jitter > 0 {
		// Scale by a factor in [1-jitter, 1+jitter]
		delay *= 1 - b.Jitter + 2*b.Jitter*rng.Float64()
		if b.Max > 0 && delay > float64(b.Max) {
			delay = float64(b.Max)
		}
	}
	return time.Duration(delay)
}
