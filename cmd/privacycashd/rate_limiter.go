// rate_limiter.go - Per public key rate limiting
package main

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyRateLimiter keeps one token bucket per wallet public key. Buckets idle
// for longer than ttl are dropped on the next sweep.
type KeyRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyLimiter
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

type keyLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewKeyRateLimiter allows perSecond requests per key with the given burst.
func NewKeyRateLimiter(perSecond float64, burst int) *KeyRateLimiter {
	return &KeyRateLimiter{
		limiters: make(map[string]*keyLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		ttl:      10 * time.Minute,
		now:      time.Now,
	}
}

// Allow checks if a request for key is allowed and consumes a token if so
func (k *KeyRateLimiter) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := k.now()
	l, ok := k.limiters[key]
	if !ok {
		l = &keyLimiter{lim: rate.NewLimiter(k.limit, k.burst)}
		k.limiters[key] = l
	}
	l.seen = now
	return l.lim.AllowN(now, 1)
}

// Sweep drops buckets that have been idle for longer than the ttl and
// returns how many remain.
func (k *KeyRateLimiter) Sweep() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	cutoff := k.now().Add(-k.ttl)
	for key, l := range k.limiters {
		if l.seen.Before(cutoff) {
			delete(k.limiters, key)
		}
	}
	return len(k.limiters)
}
