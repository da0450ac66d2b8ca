package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc maps a request to its rate limit bucket.
type KeyFunc func(*gin.Context) string

// CostFunc returns how many tokens a request consumes.
type CostFunc func(*gin.Context) int

// KeyByUserOrIP buckets authenticated requests by user and the rest by
// client IP.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if uid := userIDFromCtx(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// CostByRoute charges the listed "METHOD /route/template" entries their
// weight and every other request 1. Bulk mailbox operations fan out into
// many provider calls and are listed here.
func CostByRoute(weights map[string]int) CostFunc {
	return func(c *gin.Context) int {
		if w, ok := weights[c.Request.Method+" "+c.FullPath()]; ok && w > 0 {
			return w
		}
		return 1
	}
}

// RateLimitOptions configures NewRateLimiter.
type RateLimitOptions struct {
	RPS   float64 // tokens per second
	Burst int     // bucket size, at least 1
	Key   KeyFunc // defaults to KeyByUserOrIP
	Cost  CostFunc
	// IdleTTL evicts buckets untouched for this long. Defaults to 10m.
	IdleTTL time.Duration
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a process-local token bucket per key.
type RateLimiter struct {
	opts RateLimitOptions
	now  func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter returns a limiter ready to be installed with Handler.
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Key == nil {
		opts.Key = KeyByUserOrIP()
	}
	if opts.Cost == nil {
		opts.Cost = func(*gin.Context) int { return 1 }
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		opts:      opts,
		now:       time.Now,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// limiter returns the bucket for key, evicting idle buckets at most once per
// IdleTTL.
func (rl *RateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.opts.IdleTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.opts.IdleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(rl.opts.RPS), rl.opts.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// Len reports the number of live buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// IsRateBypass reports whether IdempotencyValidator marked the request as a
// replay that must not consume tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the limit and answers 429 with Retry-After in whole
// seconds. Idempotent replays pass through for free.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := rl.now()
		lim := rl.limiter(rl.opts.Key(c), now)
		cost := min(rl.opts.Cost(c), rl.opts.Burst)

		if lim.AllowN(now, cost) {
			c.Next()
			return
		}

		wait := time.Second
		if r := lim.ReserveN(now, cost); r.OK() {
			wait = r.DelayFrom(now)
			r.CancelAt(now)
		}
		secs := int(math.Ceil(wait.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		abortJSON(c, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
	}
}
