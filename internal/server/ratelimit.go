package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"auction-escrow/services/bidding/helpers"
	"auction-escrow/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
}

// NewRateLimiter creates a new rate limiter. rps <= 0 disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether key may make a request now
func (rl *RateLimiter) Allow(key string) bool {
	if rl.rate <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now

	// opportunistic sweep keeps the map bounded without a background goroutine
	if len(rl.limiters) > 10000 {
		for k, e := range rl.limiters {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(rl.limiters, k)
			}
		}
	}
	return entry.limiter.AllowN(now, 1)
}

// Middleware rejects callers over their budget with 429. It must run after
// CallerAuthMiddleware; anonymous requests are keyed by client IP.
func (rl *RateLimiter) Middleware(c *gin.Context) {
	key := helpers.CallerID(c)
	if key == "" {
		key = c.ClientIP()
	}

	if !rl.Allow(key) {
		utils.Warn("rate limit exceeded", map[string]any{
			"key":    key,
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
		c.Header("Retry-After", "1")
		utils.JSONErrorWithCode(c, http.StatusTooManyRequests, errors.New("too many bid requests"),
			"RATE_LIMITED", "rate limit exceeded", nil)
		c.Abort()
		return
	}
	c.Next()
}
