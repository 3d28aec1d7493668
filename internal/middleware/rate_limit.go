package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/suivivente/apps/api/internal/httpx"
)

const defaultMaxEntries = 10000

type attempt struct {
	count      int
	windowEnds time.Time
}

type LoginRateLimiter struct {
	inner *ipRateLimiter
}

type IPRateLimiter struct {
	inner *ipRateLimiter
}

type ipRateLimiter struct {
	mu         sync.Mutex
	limit      int
	window     time.Duration
	maxEntries int
	attempts   map[string]attempt
}

func NewLoginRateLimiter(limit int, window time.Duration) *LoginRateLimiter {
	return &LoginRateLimiter{inner: newIPRateLimiter(limit, window, defaultMaxEntries)}
}

func NewIPRateLimiter(limit int, window time.Duration) *IPRateLimiter {
	return NewIPRateLimiterWithMaxEntries(limit, window, defaultMaxEntries)
}

// NewIPRateLimiterWithMaxEntries bounds the number of tracked client IPs.
// When the table is full, expired windows are dropped first; if none have
// expired the table is reset.
func NewIPRateLimiterWithMaxEntries(limit int, window time.Duration, maxEntries int) *IPRateLimiter {
	return &IPRateLimiter{inner: newIPRateLimiter(limit, window, maxEntries)}
}

func newIPRateLimiter(limit int, window time.Duration, maxEntries int) *ipRateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &ipRateLimiter{
		limit:      limit,
		window:     window,
		maxEntries: maxEntries,
		attempts:   map[string]attempt{},
	}
}

func (rl *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return rl.inner.middleware("Too many login attempts", next)
}

func (rl *IPRateLimiter) Middleware(message string) func(http.Handler) http.Handler {
	if message == "" {
		message = "Rate limit exceeded"
	}
	return func(next http.Handler) http.Handler {
		return rl.inner.middleware(message, next)
	}
}

func (rl *ipRateLimiter) middleware(message string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r.RemoteAddr)
		if ip == "" {
			ip = "unknown"
		}

		if ok, retryAfter := rl.allow(ip, time.Now()); !ok {
			httpx.WriteRateLimited(w, r, message, retryAfter)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow counts a request from ip. When the limit is exceeded it also returns
// the time left in the current window.
func (rl *ipRateLimiter) allow(ip string, now time.Time) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.attempts[ip]
	if !ok && len(rl.attempts) >= rl.maxEntries {
		rl.evict(now)
	}
	if entry.windowEnds.Before(now) {
		entry = attempt{windowEnds: now.Add(rl.window)}
	}
	entry.count++
	rl.attempts[ip] = entry
	if entry.count > rl.limit {
		return false, entry.windowEnds.Sub(now)
	}
	return true, 0
}

func (rl *ipRateLimiter) evict(now time.Time) {
	for ip, entry := range rl.attempts {
		if entry.windowEnds.Before(now) {
			delete(rl.attempts, ip)
		}
	}
	if len(rl.attempts) >= rl.maxEntries {
		clear(rl.attempts)
	}
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
