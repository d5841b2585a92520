package api

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter caps how many operator submissions one caller may make
// per fixed window. Each caller gets a window starting at their first
// submission; when it expires the next submission opens a fresh one.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	seen   map[string]*callerWindow
}

type callerWindow struct {
	opened time.Time
	used   int
}

// NewRateLimiter allows limit submissions per caller per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		seen:   make(map[string]*callerWindow),
	}
}

// Take consumes one submission slot for the caller. When the caller is
// over their limit it returns false and how long until their window
// resets.
func (rl *RateLimiter) Take(caller string, now time.Time) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.seen[caller]
	if !ok || now.Sub(w.opened) >= rl.window {
		rl.prune(now)
		rl.seen[caller] = &callerWindow{opened: now, used: 1}
		return true, 0
	}
	if w.used < rl.limit {
		w.used++
		return true, 0
	}
	return false, w.opened.Add(rl.window).Sub(now)
}

// prune drops expired windows. Called under the lock whenever a new
// window opens, so the map stays bounded by the set of active callers.
func (rl *RateLimiter) prune(now time.Time) {
	for caller, w := range rl.seen {
		if now.Sub(w.opened) >= rl.window {
			delete(rl.seen, caller)
		}
	}
}

// clientIP extracts the caller identity for rate limiting: the first
// X-Forwarded-For hop when present, otherwise RemoteAddr without the
// port.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx >= 0 {
		ip = ip[:idx]
	}
	return ip
}

// RateLimitMiddleware rejects callers over their submission budget with
// 429 and a Retry-After header.
func RateLimitMiddleware(rl *RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, retry := rl.Take(clientIP(r), time.Now())
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
