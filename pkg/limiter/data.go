package limiter

import "time"

// HostTiming is a snapshot of the pacing state kept for one host.
type HostTiming struct {
	lastFetchAt  time.Time
	backoffDelay time.Duration
	backoffCount int
}

func (h HostTiming) BackoffDelay() time.Duration {
	return h.backoffDelay
}

func (h HostTiming) LastFetchAt() time.Time {
	return h.lastFetchAt
}

func (h HostTiming) BackoffCount() int {
	return h.backoffCount
}
