package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickwarner/nest/internal/observability"
)

// Scopes used by the service.
const (
	ScopeEmergency = "emergency_alert"
	ScopeUpload    = "upload"
)

// Config holds the configuration of one limiter scope.
type Config struct {
	Capacity    int           // burst allowance per user
	RefillEvery time.Duration // interval at which one token is returned
	Enabled     bool
}

// UserLimiter keeps one token bucket per user within a named scope. Buckets
// are created lazily on first access.
type UserLimiter struct {
	scope   string
	buckets map[string]*TokenBucket
	mu      sync.RWMutex
	config  Config
	metrics observability.MetricsRegistry
	now     func() time.Time
}

// NewUserLimiter creates a limiter for scope.
func NewUserLimiter(scope string, config Config, metrics observability.MetricsRegistry) *UserLimiter {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &UserLimiter{
		scope:   scope,
		buckets: make(map[string]*TokenBucket),
		config:  config,
		metrics: metrics,
		now:     time.Now,
	}
}

// Allow reports whether userID may proceed. Always true when disabled.
func (l *UserLimiter) Allow(userID string) bool {
	if l == nil || !l.config.Enabled {
		return true
	}
	l.metrics.IncrementRateLimitRequests(l.scope)

	l.mu.RLock()
	bucket, exists := l.buckets[userID]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		bucket, exists = l.buckets[userID]
		if !exists {
			bucket = newTokenBucketAt(l.config.Capacity, l.config.RefillEvery, l.now)
			l.buckets[userID] = bucket
		}
		l.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		l.metrics.IncrementRateLimitHits(l.scope)
	}
	return allowed
}

// Stats returns a snapshot of per-user statistics.
func (l *UserLimiter) Stats() map[string]Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[string]Stats, len(l.buckets))
	for userID, bucket := range l.buckets {
		hits, total := bucket.Stats()
		hitRate := 0.0
		if total > 0 {
			hitRate = float64(hits) / float64(total)
		}
		stats[userID] = Stats{UserID: userID, Hits: hits, Total: total, HitRate: hitRate}
	}
	return stats
}

// Stats summarizes rate limiting for a single user.
type Stats struct {
	UserID  string  `json:"userId"`
	Hits    int64   `json:"hits"`
	Total   int64   `json:"total"`
	HitRate float64 `json:"hitRate"`
}

func (s Stats) String() string {
	return fmt.Sprintf("user %s: %d/%d limited (%.2f%%)", s.UserID, s.Hits, s.Total, s.HitRate*100)
}
