package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		allowed, remaining, _ := rl.Allow("1.2.3.4")
		assert.True(t, allowed)
		assert.Equal(t, 2-i, remaining)
	}

	allowed, remaining, resetAt := rl.Allow("1.2.3.4")
	assert.False(t, allowed)
	assert.Zero(t, remaining)
	assert.True(t, resetAt.After(time.Now()))
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	allowed, _, _ := rl.Allow("1.2.3.4")
	assert.True(t, allowed)

	allowed, _, _ = rl.Allow("1.2.3.4")
	assert.False(t, allowed)

	allowed, _, _ = rl.Allow("5.6.7.8")
	assert.True(t, allowed)
}

func TestRateLimiterWindowSlides(t *testing.T) {
	rl := NewRateLimiter(1, 50*time.Millisecond)

	allowed, _, _ := rl.Allow("1.2.3.4")
	require.True(t, allowed)

	allowed, _, _ = rl.Allow("1.2.3.4")
	require.False(t, allowed)

	time.Sleep(60 * time.Millisecond)

	allowed, _, _ = rl.Allow("1.2.3.4")
	assert.True(t, allowed)
}

func TestRateLimiterMiddlewareHeaders(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/portfolio", nil)
	req.RemoteAddr = "1.2.3.4:5678"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	assert.Equal(t, "1.2.3.4", clientKey(req))

	req.RemoteAddr = "no-port"
	assert.Equal(t, "no-port", clientKey(req))
}
