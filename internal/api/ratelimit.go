package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// defaultBurst is the per-IP token allowance when ServerConfig leaves
	// RateBurst unset. Refill is fixed at one token per second.
	defaultBurst        = 60
	defaultRefillPerSec = 1.0

	limiterSweepEvery   = 5 * time.Minute
	limiterIdleEviction = 10 * time.Minute
)

// ipLimiter hands out one token bucket per client IP. Buckets idle past
// limiterIdleEviction are evicted during allow calls; there is no
// background goroutine to manage.
type ipLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	refill    rate.Limit
	burst     int
	lastSweep time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(burst int) *ipLimiter {
	if burst <= 0 {
		burst = defaultBurst
	}
	return &ipLimiter{
		buckets:   make(map[string]*bucket),
		refill:    rate.Limit(defaultRefillPerSec),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// allow reports whether a request from ip may proceed, spending one token
// from its bucket.
func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.sweep(now)

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.refill, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	return b.lim.Allow()
}

// sweep evicts idle buckets at most once per limiterSweepEvery.
// Caller holds mu.
func (l *ipLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < limiterSweepEvery {
		return
	}
	for ip, b := range l.buckets {
		if now.Sub(b.lastSeen) > limiterIdleEviction {
			delete(l.buckets, ip)
		}
	}
	l.lastSweep = now
}

// rateLimitMiddleware rejects requests from IPs that have exhausted their
// token bucket with 429 and a Retry-After hint.
func rateLimitMiddleware(l *ipLimiter, trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustProxy)
			if !l.allow(ip) {
				logger.Warn("rate limit exceeded",
					"ip", ip,
					"method", r.Method,
					"path", r.URL.Path,
				)
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP identifies the caller for rate limiting. Proxy headers are
// consulted only when trustProxy is set; otherwise RemoteAddr alone is
// authoritative.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := forwardedIP(r); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// forwardedIP reads the proxy headers, accepting only values that parse as
// an IP so arbitrary header strings cannot become limiter keys. X-Real-IP
// wins over the first X-Forwarded-For hop.
func forwardedIP(r *http.Request) string {
	for _, raw := range []string{r.Header.Get("X-Real-IP"), r.Header.Get("X-Forwarded-For")} {
		if raw == "" {
			continue
		}
		if first, _, ok := strings.Cut(raw, ","); ok {
			raw = first
		}
		if ip := net.ParseIP(strings.TrimSpace(raw)); ip != nil {
			return ip.String()
		}
	}
	return ""
}
