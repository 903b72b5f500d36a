// Package ratelimit provides token-bucket limiters keyed by an arbitrary
// string (client IP, tenant+terminal, ...), with idle keys evicted.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Keyed holds one rate.Limiter per key.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

// NewKeyed creates a limiter allowing limit events per second with the given
// burst for every key. Keys idle for longer than ttl are forgotten by Cleanup.
func NewKeyed(limit rate.Limit, burst int, ttl time.Duration) *Keyed {
	return &Keyed{
		entries: make(map[string]*entry),
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

// PerMinute converts an events-per-minute budget into a rate.Limit.
func PerMinute(n int) rate.Limit {
	if n <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Minute / time.Duration(n))
}

// Allow reports whether an event for key may happen now.
func (k *Keyed) Allow(key string) bool {
	return k.get(key).AllowN(k.now(), 1)
}

// Reset drops the limiter for key, e.g. after a successful PIN login.
func (k *Keyed) Reset(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.entries, key)
}

func (k *Keyed) get(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.entries[key] = e
	}
	e.lastSeen = k.now()
	return e.limiter
}

// Cleanup evicts keys not seen within the ttl.
func (k *Keyed) Cleanup() {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	for key, e := range k.entries {
		if now.Sub(e.lastSeen) > k.ttl {
			delete(k.entries, key)
		}
	}
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

// Run calls Cleanup every ttl until ctx is cancelled.
func (k *Keyed) Run(ctx context.Context) {
	ticker := time.NewTicker(k.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.Cleanup()
		}
	}
}
