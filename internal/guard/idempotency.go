package guard

import (
	"context"
	"sync"
	"time"

	"github.com/attaboy/walletcore/internal/domain"
)

// IdempotencyGuard deduplicates deliveries by key for a retention period.
type IdempotencyGuard struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	retention time.Duration
	now       func() time.Time
}

// NewIdempotencyGuard creates an in-memory guard that remembers keys for retention.
func NewIdempotencyGuard(retention time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{
		seen:      make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// WithClock replaces the time source.
func (ig *IdempotencyGuard) WithClock(now func() time.Time) *IdempotencyGuard {
	ig.now = now
	return ig
}

// Check claims key. A key claimed within the retention period is refused.
func (ig *IdempotencyGuard) Check(_ context.Context, key string) domain.GuardResult {
	if key == "" {
		return domain.GuardResult{Allowed: true}
	}

	ig.mu.Lock()
	defer ig.mu.Unlock()

	now := ig.now()
	ig.evict(now)
	if _, ok := ig.seen[key]; ok {
		return domain.GuardResult{
			Allowed: false,
			Reason:  "duplicate delivery: key already processed",
			Guard:   "idempotency",
		}
	}

	ig.seen[key] = now
	return domain.GuardResult{Allowed: true}
}

// Remove releases a key so a failed delivery can be retried.
func (ig *IdempotencyGuard) Remove(key string) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	delete(ig.seen, key)
}

func (ig *IdempotencyGuard) evict(now time.Time) {
	if ig.retention <= 0 {
		return
	}
	for k, at := range ig.seen {
		if now.Sub(at) >= ig.retention {
			delete(ig.seen, k)
		}
	}
}
