// Package ratelimit provides an in-memory, per-key token-bucket limiter with
// opportunistic eviction of idle buckets. It is shared by the Discord
// interaction handler (keyed by user) and the admin HTTP API (keyed by client).
//
// The limiter is process-local. Discord delivers every gateway event of a bot
// to a single process, so no distributed limiter is needed.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// defaultTTL evicts buckets idle for this long.
	defaultTTL = 10 * time.Minute
	// gcEvery is the number of lookups between eviction sweeps.
	gcEvery = 5000
)

// visitor holds a single rate limiter and the last time it was seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Keyed is a set of token buckets, one per key. Safe for concurrent use.
type Keyed struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	lookups  uint64

	now func() time.Time
}

// New returns a limiter allowing rps tokens per second per key with the given
// burst. A burst <= 0 is coerced to 1; rps <= 0 disables limiting.
func New(rps float64, burst int) *Keyed {
	if burst <= 0 {
		burst = 1
	}
	return &Keyed{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
		ttl:      defaultTTL,
		now:      time.Now,
	}
}

// Allow reports whether an event for key may happen now, consuming a token.
func (k *Keyed) Allow(key string) bool {
	if k == nil || k.rps <= 0 {
		return true
	}
	return k.limiter(key).AllowN(k.now(), 1)
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.visitors)
}

// limiter returns the bucket for key, creating it if absent. Eviction runs
// before the lookup so a stale bucket is dropped even when it is the one
// being fetched.
func (k *Keyed) limiter(key string) *rate.Limiter {
	now := k.now()

	k.mu.Lock()
	defer k.mu.Unlock()

	k.lookups++
	if k.lookups >= gcEvery {
		for id, v := range k.visitors {
			if now.Sub(v.lastSeen) >= k.ttl {
				delete(k.visitors, id)
			}
		}
		k.lookups = 0
	}

	if v, ok := k.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(k.rps, k.burst)
	k.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}
