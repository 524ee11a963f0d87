// This file implements the per-caller token-bucket limiter in front of the
// public API. Buckets live in process memory and idle ones are evicted
// opportunistically; a horizontally scaled deployment gets one budget per
// replica.
package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	visitorTTL      = 10 * time.Minute
	gcEveryLookups  = 5000
	headerAccountID = "X-User-ID"
)

// KeyFunc maps a request to its bucket.
type KeyFunc func(*gin.Context) string

// KeyByAccountOrIP keys tool and admin callers by their X-User-ID account
// and everyone else by client IP. The prefixes keep the namespaces apart.
func KeyByAccountOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if id := strings.TrimSpace(c.GetHeader(headerAccountID)); id != "" {
			return "account:" + id
		}
		return "ip:" + c.ClientIP()
	}
}

// SkipPathPrefixes exempts routes whose path starts with one of prefixes.
// Provider webhooks are exempted: Meta and Telegram deliver from a handful
// of addresses and retry on 429, which would only duplicate load.
func SkipPathPrefixes(prefixes ...string) func(*gin.Context) bool {
	return func(c *gin.Context) bool {
		p := c.Request.URL.Path
		for _, pre := range prefixes {
			if pre != "" && strings.HasPrefix(p, pre) {
				return true
			}
		}
		return false
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a keyed set of token buckets. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn KeyFunc

	// Skip, when set, lets matching requests through without a token.
	Skip func(*gin.Context) bool

	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	lookups  uint64
}

// NewRateLimiter builds a limiter refilling rps tokens per second per key.
// A burst below 1 is raised to 1.
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      visitorTTL,
	}
}

// getVisitor returns the bucket for key. Every gcEveryLookups calls idle
// buckets are dropped first, so a stale bucket is evicted even when it is
// the one being looked up.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= gcEveryLookups {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.lookups = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyLookup marked the request as a
// replay of a stored response.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the limit, answering 429 rate_limited with Retry-After: 1.
// Replays and skipped routes pass through untouched.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) || (rl.Skip != nil && rl.Skip(c)) {
			c.Next()
			return
		}
		if rl.getVisitor(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
