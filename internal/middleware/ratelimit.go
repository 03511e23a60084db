package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// RatePerSecond is the sustained request rate allowed per client IP
	RatePerSecond int
	// Burst is the max requests in a burst
	Burst int
	// CleanupInterval is how often to clean up old limiters
	CleanupInterval time.Duration
	// MaxAge is how long to keep a limiter after last use
	MaxAge time.Duration
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RatePerSecond:   10,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// rateLimiterEntry holds a limiter and its last access time
type rateLimiterEntry struct {
	limiter      *rate.Limiter
	lastSeenNano atomic.Int64
}

// RateLimiter manages per-key rate limiters
type RateLimiter struct {
	config   RateLimitConfig
	limiters sync.Map // map[string]*rateLimiterEntry
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter with the given config
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		config: config,
		stopCh: make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// cleanup periodically removes old limiters
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			rl.limiters.Range(func(key, value any) bool {
				entry := value.(*rateLimiterEntry)
				lastSeen := time.Unix(0, entry.lastSeenNano.Load())
				if now.Sub(lastSeen) > rl.config.MaxAge {
					rl.limiters.Delete(key)
				}
				return true
			})
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// getLimiter returns or creates a limiter for the given key
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	now := time.Now().UnixNano()

	if val, ok := rl.limiters.Load(key); ok {
		entry := val.(*rateLimiterEntry)
		entry.lastSeenNano.Store(now)
		return entry.limiter
	}

	entry := &rateLimiterEntry{
		limiter: rate.NewLimiter(rate.Limit(rl.config.RatePerSecond), rl.config.Burst),
	}
	entry.lastSeenNano.Store(now)
	actual, _ := rl.limiters.LoadOrStore(key, entry)
	return actual.(*rateLimiterEntry).limiter
}

// Allow checks if a request is allowed for the given key
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// RateLimit creates middleware that limits requests per client IP.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow("ip:" + clientIP(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.RatePerSecond))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr. chi's RealIP middleware has
// already applied proxy headers.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
