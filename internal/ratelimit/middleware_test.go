package ratelimit_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowyourdev/knowyourdev/internal/model"
	"github.com/knowyourdev/knowyourdev/internal/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, remote string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/research", nil)
	req.RemoteAddr = remote
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareRejectsOverBurst(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(1, 2)
	defer func() { _ = limiter.Close() }()
	h := ratelimit.Middleware(limiter, ratelimit.IPKeyFunc, nil)(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, "192.168.1.1:12345").Code)
	assert.Equal(t, http.StatusOK, serve(h, "192.168.1.1:12346").Code)

	rec := serve(h, "192.168.1.1:12347")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, model.MessageRateLimited, body.Error)
}

func TestMiddlewareKeysPerIP(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(1, 1)
	defer func() { _ = limiter.Close() }()
	h := ratelimit.Middleware(limiter, ratelimit.IPKeyFunc, nil)(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.2:1000").Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) { return false, errors.New("down") }
func (brokenLimiter) Close() error                                  { return nil }

func TestMiddlewareFailsOpen(t *testing.T) {
	h := ratelimit.Middleware(brokenLimiter{}, ratelimit.IPKeyFunc, nil)(okHandler())
	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1000").Code)
}

func TestMiddlewareNilLimiterPasses(t *testing.T) {
	h := ratelimit.Middleware(nil, ratelimit.IPKeyFunc, nil)(okHandler())
	for range 10 {
		assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1000").Code)
	}
}

func TestIPKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "ip:::1", ratelimit.IPKeyFunc(req))
	req.RemoteAddr = "no-port"
	assert.Equal(t, "no-port", ratelimit.IPKeyFunc(req))
}
