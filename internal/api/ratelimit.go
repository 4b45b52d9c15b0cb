package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter applies a per-client token bucket. Idle clients are
// evicted periodically so the map does not grow without bound.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientBucket
	limit    rate.Limit
	burst    int
	keyFunc  func(r *http.Request) string
	cleanupT *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitConfig defines rate limit parameters.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
	KeyFunc   func(r *http.Request) string
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = GetClientIP
	}
	if cfg.Burst == 0 {
		cfg.Burst = cfg.PerMinute
	}
	rl := &RateLimiter{
		clients: make(map[string]*clientBucket),
		limit:   rate.Limit(float64(cfg.PerMinute) / 60.0),
		burst:   cfg.Burst,
		keyFunc: cfg.KeyFunc,
		stopCh:  make(chan struct{}),
	}
	rl.cleanupT = time.NewTicker(time.Minute)
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.cleanupT.C:
			cutoff := time.Now().Add(-3 * time.Minute)
			rl.mu.Lock()
			for key, cb := range rl.clients {
				if cb.lastSeen.Before(cutoff) {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			rl.cleanupT.Stop()
			return
		}
	}
}

// Stop stops the cleanup goroutine. Safe to call multiple times.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
}

// Allow checks if a request should be let through.
func (rl *RateLimiter) Allow(r *http.Request) bool {
	key := rl.keyFunc(r)

	rl.mu.Lock()
	cb, ok := rl.clients[key]
	if !ok {
		cb = &clientBucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = cb
	}
	cb.lastSeen = time.Now()
	rl.mu.Unlock()

	return cb.limiter.Allow()
}

// Middleware returns HTTP middleware enforcing the limit.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(r) {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetClientIP extracts the client IP from a request.
// chi middleware.RealIP already sets r.RemoteAddr from X-Real-IP /
// X-Forwarded-For, so we only strip the port here. Do NOT re-read those
// headers — an attacker can spoof X-Forwarded-For to bypass per-IP
// limits.
func GetClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr may not have a port (e.g. unix socket)
		return r.RemoteAddr
	}
	return host
}
