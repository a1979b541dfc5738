package server

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter enforces a sliding window request limit per client.
// Clients are keyed by IP address.
type RateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	clients map[string][]time.Time
	lastGC  time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string][]time.Time),
		lastGC:  time.Now(),
	}
}

// Allow records a request for the client and reports whether it is
// within the limit. It also returns the remaining budget and when the
// oldest counted request falls out of the window.
func (rl *RateLimiter) Allow(client string) (allowed bool, remaining int, resetAt time.Time) {
	now := time.Now()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastGC) > rl.window {
		rl.collect(cutoff)
		rl.lastGC = now
	}

	// Drop requests that slid out of the window
	history := rl.clients[client]
	kept := history[:0]
	for _, t := range history {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= rl.limit {
		rl.clients[client] = kept
		return false, 0, kept[0].Add(rl.window)
	}

	kept = append(kept, now)
	rl.clients[client] = kept
	return true, rl.limit - len(kept), kept[0].Add(rl.window)
}

// collect removes clients with no requests inside the window
func (rl *RateLimiter) collect(cutoff time.Time) {
	for client, history := range rl.clients {
		active := false
		for _, t := range history {
			if t.After(cutoff) {
				active = true
				break
			}
		}
		if !active {
			delete(rl.clients, client)
		}
	}
}

// Middleware applies the rate limit and sets X-RateLimit headers
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientKey(r)
		allowed, remaining, resetAt := rl.Allow(client)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = fmt.Fprintf(w, `{"error":"rate limit exceeded, retry after %s"}`, time.Until(resetAt).Round(time.Second))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientKey extracts the client address. RealIP middleware has already
// resolved proxy headers into RemoteAddr.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
