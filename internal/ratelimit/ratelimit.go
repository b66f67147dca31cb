// Package ratelimit provides a keyed token bucket limiter for inbound write traffic.
// Buckets that sit idle longer than the configured TTL are evicted in the background.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultIdleTTL is how long an unused bucket survives before eviction.
const DefaultIdleTTL = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter manages per-key rate limiting.
// Each unique key (usually a client address or principal) gets its own bucket.
type KeyedRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a keyed rate limiter allowing rps sustained requests per key
// with bursts up to burst. idleTTL <= 0 uses DefaultIdleTTL.
func New(rps float64, burst int, idleTTL time.Duration) *KeyedRateLimiter {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	krl := &KeyedRateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		now:     time.Now,
		done:    make(chan struct{}),
	}

	go krl.evictLoop()

	return krl
}

// Allow reports whether a request for key may proceed now. It never blocks.
func (krl *KeyedRateLimiter) Allow(key string) bool {
	krl.mu.Lock()
	b, ok := krl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(krl.limit, krl.burst)}
		krl.buckets[key] = b
	}
	now := krl.now()
	b.lastSeen = now
	krl.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// Len returns the number of live buckets.
func (krl *KeyedRateLimiter) Len() int {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	return len(krl.buckets)
}

// Stop shuts down the eviction goroutine. Safe to call more than once.
func (krl *KeyedRateLimiter) Stop() {
	krl.stopOnce.Do(func() {
		close(krl.done)
	})
}

// evict drops buckets idle for longer than the TTL and returns how many were removed.
func (krl *KeyedRateLimiter) evict() int {
	krl.mu.Lock()
	defer krl.mu.Unlock()

	cutoff := krl.now().Add(-krl.idleTTL)
	removed := 0
	for key, b := range krl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(krl.buckets, key)
			removed++
		}
	}
	return removed
}

func (krl *KeyedRateLimiter) evictLoop() {
	ticker := time.NewTicker(krl.idleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-krl.done:
			return
		case <-ticker.C:
			krl.evict()
		}
	}
}
