package limiter

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rohmanhakim/catalog-crawler/pkg/timeutil"
)

// RateLimiter
// Paces requests per host during a crawl.
// Responsibilities:
// - Bookkeep each host's last fetch timestamp
// - Grow a per-host backoff when the host pushes back, reset it on success
// - Compute the remaining delay before the next request to a host
type RateLimiter interface {
	Wait(ctx context.Context, host string) error
	Backoff(host string)
	ResetBackoff(host string)
	ResolveDelay(host string) time.Duration
}

type ConcurrentRateLimiter struct {
	mu           sync.RWMutex
	rngMu        sync.Mutex
	baseDelay    time.Duration
	jitter       time.Duration
	backoffParam timeutil.BackoffParam
	hostTimings  map[string]HostTiming
	rng          *rand.Rand
}

func NewConcurrentRateLimiter() *ConcurrentRateLimiter {
	return &ConcurrentRateLimiter{
		hostTimings:  make(map[string]HostTiming),
		backoffParam: timeutil.NewBackoffParam(1*time.Second, 2.0, 30*time.Second),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ConcurrentRateLimiter) SetBaseDelay(baseDelay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.baseDelay = baseDelay
}

func (r *ConcurrentRateLimiter) SetJitter(jitter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jitter = jitter
}

func (r *ConcurrentRateLimiter) SetBackoffParam(param timeutil.BackoffParam) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.backoffParam = param
}

func (r *ConcurrentRateLimiter) SetRandomSeed(randomSeed int64) {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	r.rng = rand.New(rand.NewSource(randomSeed))
}

// Backoff increments the backoff counter of host and recomputes its delay.
func (r *ConcurrentRateLimiter) Backoff(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timing := r.hostTimings[host]
	timing.backoffCount++
	timing.backoffDelay = r.backoffDelay(timing.backoffCount)
	r.hostTimings[host] = timing
}

// ResetBackoff clears backoff state after a successful request.
func (r *ConcurrentRateLimiter) ResetBackoff(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timing, exists := r.hostTimings[host]
	if exists {
		timing.backoffCount = 0
		timing.backoffDelay = 0
		r.hostTimings[host] = timing
	}
}

// ResolveDelay returns how long a caller should wait before fetching host.
// FinalDelay = max(BaseDelay, BackoffDelay) + Jitter - elapsed since last fetch
func (r *ConcurrentRateLimiter) ResolveDelay(host string) time.Duration {
	r.mu.RLock()
	timing, exists := r.hostTimings[host]
	base := r.baseDelay
	jitter := r.jitter
	r.mu.RUnlock()

	if !exists || timing.lastFetchAt.IsZero() {
		return 0
	}

	finalDelay := timeutil.MaxDuration([]time.Duration{base, timing.backoffDelay})
	finalDelay += r.computeJitter(jitter)

	elapsed := time.Since(timing.lastFetchAt)
	if elapsed < finalDelay {
		return finalDelay - elapsed
	}
	return 0
}

// Wait blocks until host may be fetched again and claims that slot. Concurrent
// callers for the same host are given successive slots, so they never fire
// together. It returns ctx.Err() if ctx ends first; the claimed slot is kept.
func (r *ConcurrentRateLimiter) Wait(ctx context.Context, host string) error {
	r.mu.Lock()
	timing := r.hostTimings[host]
	now := time.Now()
	slot := now
	if !timing.lastFetchAt.IsZero() {
		gap := timeutil.MaxDuration([]time.Duration{r.baseDelay, timing.backoffDelay}) + r.computeJitter(r.jitter)
		if next := timing.lastFetchAt.Add(gap); next.After(now) {
			slot = next
		}
	}
	timing.lastFetchAt = slot
	r.hostTimings[host] = timing
	r.mu.Unlock()

	delay := time.Until(slot)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoffDelay does NOT take r.mu; the caller must hold it.
func (r *ConcurrentRateLimiter) backoffDelay(backoffCount int) time.Duration {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return timeutil.ExponentialBackoffDelay(backoffCount, r.jitter, *r.rng, r.backoffParam)
}

// computeJitter returns a pseudo-random duration in [0, max).
func (r *ConcurrentRateLimiter) computeJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	return timeutil.ComputeJitter(max, *r.rng)
}

func (r *ConcurrentRateLimiter) BaseDelay() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.baseDelay
}

func (r *ConcurrentRateLimiter) Jitter() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jitter
}

// HostTiming returns the pacing snapshot for host.
func (r *ConcurrentRateLimiter) HostTiming(host string) (HostTiming, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	timing, ok := r.hostTimings[host]
	return timing, ok
}
