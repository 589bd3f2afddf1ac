package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// entry is the bucket for one key.
type entry struct {
	lim        *rate.Limiter
	lastAccess time.Time
}

// MemoryLimiter implements Limiter with one token bucket per key.
// Keys idle for staleThreshold are evicted by a background sweep.
type MemoryLimiter struct {
	rate  rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*entry
	now     func() time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter creates a limiter allowing perSecond sustained requests
// per key with bursts of up to burst. Call Close to stop the sweep.
func NewMemoryLimiter(perSecond float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		rate:    rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[string]*entry),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go m.cleanup()
	return m
}

// Allow consumes one token from the bucket for key.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.buckets[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(m.rate, m.burst)}
		m.buckets[key] = e
	}
	e.lastAccess = now
	return e.lim.AllowN(now, 1), nil
}

// RetryAfter reports how long key must wait for its next token.
func (m *MemoryLimiter) RetryAfter(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.buckets[key]
	if !ok {
		return 0
	}
	now := m.now()
	r := e.lim.ReserveN(now, 1)
	d := r.DelayFrom(now)
	r.CancelAt(now)
	return d
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

const staleThreshold = 10 * time.Minute

func (m *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

func (m *MemoryLimiter) evictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-staleThreshold)
	for key, e := range m.buckets {
		if e.lastAccess.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
