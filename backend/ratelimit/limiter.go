package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter answers whether one more request under key is allowed right now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter is a per-key token bucket. It serves single-process
// deployments where no redis is configured.
type MemoryLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity float64
	rate     float64
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewMemoryLimiter allows limit requests per window per key, with bursts up
// to limit.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &MemoryLimiter{
		buckets:  make(map[string]*bucket),
		capacity: float64(limit),
		rate:     float64(limit) / window.Seconds(),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, lastCheck: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastCheck).Seconds()
	b.lastCheck = now
	if elapsed > 0 {
		b.tokens += elapsed * l.rate
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, nil
	}
	return false, nil
}
