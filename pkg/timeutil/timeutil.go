package timeutil

import (
	"math"
	"math/rand"
	"time"
)

// MaxDuration returns the largest of durations, or 0 when the slice is empty.
func MaxDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	max := durations[0]
	for _, d := range durations[1:] {
		if d > max {
			max = d
		}
	}
	return max
}

// ComputeJitter returns a uniformly distributed duration in [0, max).
func ComputeJitter(max time.Duration, rng rand.Rand) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rng.Int63n(int64(max)))
}

// ExponentialBackoffDelay computes initial * multiplier^(count-1), capped at the
// configured maximum, plus a random jitter. Counts below 1 are treated as 1.
func ExponentialBackoffDelay(
	backoffCount int,
	jitter time.Duration,
	rng rand.Rand,
	param BackoffParam,
) time.Duration {
	if backoffCount < 1 {
		backoffCount = 1
	}

	base := float64(param.InitialDuration()) * math.Pow(param.Multiplier(), float64(backoffCount-1))
	delay := param.MaxDuration()
	if base < float64(param.MaxDuration()) {
		delay = time.Duration(base)
	}
	if delay < 0 {
		delay = 0
	}

	return delay + ComputeJitter(jitter, rng)
}
