package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ClientIP returns the caller's address. X-Real-IP and the first
// X-Forwarded-For hop are trusted because the API runs behind a reverse proxy.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Limit is a fixed-window quota. Name scopes the counters so that two limits
// never share a bucket for the same caller.
type Limit struct {
	Name   string
	Max    int
	Window time.Duration
}

// Decision is the outcome of a single Take.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// RateLimiter keeps per-key fixed windows in memory. Counters are lost on
// restart and are not shared between instances.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Take counts one hit for key against l.
func (rl *RateLimiter) Take(key string, l Limit) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	bucket := l.Name + ":" + key
	w, ok := rl.windows[bucket]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.Window)}
		rl.windows[bucket] = w
	}
	w.count++
	return Decision{
		Allowed:   w.count <= l.Max,
		Remaining: max(l.Max-w.count, 0),
		ResetAt:   w.resetAt,
	}
}

// Cleanup drops windows that have already reset and reports how many it removed.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, key)
			removed++
		}
	}
	return removed
}

// RateLimit enforces l per client IP. Every response carries the
// X-RateLimit-* headers; rejected requests also get Retry-After.
func RateLimit(limiter *RateLimiter, l Limit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := limiter.Take(ClientIP(r), l)
			wait := strconv.Itoa(int(math.Ceil(d.ResetAt.Sub(limiter.now()).Seconds())))

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", wait)
			if !d.Allowed {
				h.Set("Retry-After", wait)
				writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
