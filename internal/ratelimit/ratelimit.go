// Package ratelimit provides per-IP connect-rate limiting for the
// Connection Hub's WebSocket upgrade endpoint (SPEC_FULL §4.3 additions).
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter tracks per-IP token buckets for inbound connect attempts.
// Rate limiting is per-replica: each gateway instance maintains its own
// counters. With N replicas behind a load balancer the effective limit per
// IP is N * rate, which is acceptable for burst protection at this layer.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	cleanup  time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a rate limiter allowing r connects per second per IP with
// burst b. Stale visitor entries are swept periodically.
func New(r rate.Limit, b int) *Limiter {
	l := &Limiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    b,
		cleanup:  3 * time.Minute,
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether a connect attempt from ip is currently permitted.
func (l *Limiter) Allow(ip string) bool {
	l.mu.Lock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	l.mu.Unlock()
	return v.limiter.Allow()
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanup)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		for ip, v := range l.visitors {
			if time.Since(v.lastSeen) > l.cleanup {
				delete(l.visitors, ip)
			}
		}
		l.mu.Unlock()
	}
}

// ClientIP extracts the caller's IP from a request, preferring
// X-Forwarded-For then X-Real-Ip, falling back to RemoteAddr stripped of
// its port — the WebSocket upgrade path sits behind the same kind of
// load balancer as the rest of this stack.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
