// Package ratelimit throttles research starts per client.
//
// MemoryLimiter holds a token bucket per key in this process. Several
// replicas behind a balancer each enforce their own budget.
package ratelimit

import "context"

// Limiter admits or rejects one request for key. Safe for concurrent use.
type Limiter interface {
	// Allow consumes a token for key. A non-nil error means the limiter
	// itself failed; the middleware lets the request through.
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}

// NoopLimiter admits everything. Used with KYD_RATE_LIMIT_ENABLED=false.
type NoopLimiter struct{}

func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }
func (NoopLimiter) Close() error { return nil }
