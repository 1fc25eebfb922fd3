// Package ratelimit provides per-client token bucket rate limiting.
//
// Reads cost one token. Requests that compile or mutate plans (POST, PUT,
// DELETE) cost WriteCost tokens.
package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds the configuration for rate limiting
type Config struct {
	Enabled bool
	// RequestsPerMin is the token refill rate per client
	RequestsPerMin int
	// BurstSize is the bucket size
	BurstSize int
	// WriteCost is the number of tokens a write request takes; <= 1 means 1
	WriteCost int
	// CleanupMinutes is how long an idle client is remembered
	CleanupMinutes int
	// Key identifies the client; defaults to the remote host
	Key func(*http.Request) string
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages per-client rate limiters
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	rate      rate.Limit
	burst     int
	writeCost int
	idle      time.Duration
	key       func(*http.Request) string
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// New creates a RateLimiter and starts its sweeper goroutine.
func New(cfg Config) *RateLimiter {
	idle := time.Duration(cfg.CleanupMinutes) * time.Minute
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	cost := cfg.WriteCost
	if cost < 1 {
		cost = 1
	}
	burst := cfg.BurstSize
	if burst < cost {
		burst = cost
	}
	key := cfg.Key
	if key == nil {
		key = remoteHost
	}

	rl := &RateLimiter{
		limiters:  make(map[string]*clientLimiter),
		rate:      rate.Limit(float64(cfg.RequestsPerMin) / 60.0),
		burst:     burst,
		writeCost: cost,
		idle:      idle,
		key:       key,
		stopCh:    make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Stop stops the sweeper goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// sweep forgets clients idle since before now-idle
func (rl *RateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.idle)
	for k, l := range rl.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(rl.limiters, k)
		}
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if l, ok := rl.limiters[key]; ok {
		l.lastSeen = now
		return l.limiter
	}
	l := &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst), lastSeen: now}
	rl.limiters[key] = l
	return l.limiter
}

func (rl *RateLimiter) cost(r *http.Request) int {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return rl.writeCost
	default:
		return 1
	}
}

// exemptPaths are never rate limited
var exemptPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// Middleware returns an HTTP middleware that rate limits requests per client
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if !rl.limiterFor(rl.key(r)).AllowN(time.Now(), rl.cost(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"code":    "RATE_LIMIT_EXCEEDED",
						"message": "Too many requests. Please try again later.",
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Middleware builds a RateLimiter from cfg and returns its middleware, or a
// pass-through when rate limiting is disabled. The sweeper runs for the
// lifetime of the process.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return New(cfg).Middleware()
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
