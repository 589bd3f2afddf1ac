package ratelimit

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/knowyourdev/knowyourdev/internal/model"
)

// KeyFunc extracts the rate limit key from a request. An empty key skips
// limiting for that request.
type KeyFunc func(r *http.Request) string

// retryAfterer is implemented by limiters that can say when the next token
// will be available.
type retryAfterer interface {
	RetryAfter(key string) time.Duration
}

// Middleware returns HTTP middleware that rejects requests over the limit
// with 429 and the standard error envelope. Limiter errors fail open.
func Middleware(limiter Limiter, keyFunc KeyFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, err := limiter.Allow(r.Context(), key)
			if err != nil {
				if logger != nil {
					logger.Warn("ratelimit: limiter error, allowing request", "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				retryAfter := 1.0
				if ra, isRA := limiter.(retryAfterer); isRA {
					retryAfter = math.Max(1, math.Ceil(ra.RetryAfter(key).Seconds()))
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter)))
				writeRateLimitError(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimitError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(model.APIError{
		Success: false,
		Error:   model.MessageRateLimited,
	})
}

// IPKeyFunc keys on the client IP from RemoteAddr. X-Forwarded-For is not
// trusted since any client can set it; behind a proxy, configure the proxy
// to set RemoteAddr.
func IPKeyFunc(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return "ip:" + host
}
