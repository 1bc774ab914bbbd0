package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/attaboy/walletcore/internal/domain"
)

// RateLimiter caps how many payment requests one key may submit inside a
// sliding window. Keys with no hits left in the window are swept once per
// window so the map does not grow with every user that ever submitted.
type RateLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	limit     int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

// NewRateLimiter allows limit hits per key per window.
// A limit of zero or less disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// WithClock replaces the time source.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	rl.now = now
	return rl
}

// Check records a hit for key when it fits in the window. A refused hit is not
// recorded, and the reason says how long until the oldest hit ages out.
func (rl *RateLimiter) Check(_ context.Context, key string) domain.GuardResult {
	if rl.limit <= 0 {
		return domain.GuardResult{Allowed: true}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	live := rl.live(key, now)
	if len(live) >= rl.limit {
		wait := live[0].Add(rl.window).Sub(now).Round(time.Second)
		if wait < time.Second {
			wait = time.Second
		}
		return domain.GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("too many payment requests, try again in %s", wait),
			Guard:   "rate_limiter",
		}
	}
	rl.hits[key] = append(live, now)
	return domain.GuardResult{Allowed: true}
}

// Allow is Check expressed as a RateLimited error.
func (rl *RateLimiter) Allow(ctx context.Context, key string) error {
	if res := rl.Check(ctx, key); !res.Allowed {
		return domain.ErrRateLimited(res.Reason)
	}
	return nil
}

// Tracked returns the number of keys currently held.
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.hits)
}

// live drops the hits of key that are older than the window. Hits are kept in
// arrival order, so the expired ones form a prefix.
func (rl *RateLimiter) live(key string, now time.Time) []time.Time {
	hits := rl.hits[key]
	cutoff := now.Add(-rl.window)
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.window {
		return
	}
	rl.lastSweep = now
	for key := range rl.hits {
		if len(rl.live(key, now)) == 0 {
			delete(rl.hits, key)
		}
	}
}
