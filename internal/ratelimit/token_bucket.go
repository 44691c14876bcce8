// Package ratelimit implements per-user token bucket rate limiting.
//
// A bucket allows bursts up to its capacity and then admits one request per
// refill interval. Emergency alerts and attachment uploads each get their own
// limiter scope.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a thread-safe token bucket.
//
//	bucket := NewTokenBucket(3, 20*time.Second) // burst of 3, then one per 20s
//	if !bucket.Allow() {
//	    // reject
//	}
type TokenBucket struct {
	capacity    int
	tokens      int
	refillEvery time.Duration
	lastRefill  time.Time
	mu          sync.Mutex
	hitCount    int64
	totalCount  int64

	now func() time.Time
}

// NewTokenBucket creates a full bucket holding capacity tokens that regains
// one token every refillEvery. A non-positive refillEvery never refills.
func NewTokenBucket(capacity int, refillEvery time.Duration) *TokenBucket {
	return newTokenBucketAt(capacity, refillEvery, time.Now)
}

func newTokenBucketAt(capacity int, refillEvery time.Duration, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:    capacity,
		tokens:      capacity,
		refillEvery: refillEvery,
		lastRefill:  now(),
		now:         now,
	}
}

// Allow consumes one token if available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.totalCount++
	tb.refill()

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	tb.hitCount++
	return false
}

// refill credits whole intervals elapsed since the last refill. The
// remainder is carried so slow callers are not starved.
func (tb *TokenBucket) refill() {
	if tb.refillEvery <= 0 {
		return
	}
	now := tb.now()
	n := int(now.Sub(tb.lastRefill) / tb.refillEvery)
	if n <= 0 {
		return
	}
	tb.tokens = min(tb.capacity, tb.tokens+n)
	tb.lastRefill = tb.lastRefill.Add(time.Duration(n) * tb.refillEvery)
	if tb.tokens == tb.capacity {
		tb.lastRefill = now
	}
}

// Stats returns the number of rejected and total requests.
func (tb *TokenBucket) Stats() (hits, total int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.hitCount, tb.totalCount
}
