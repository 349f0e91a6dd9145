package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is a fixed-window counter keyed by caller. Device
// registration sits behind it so a misbehaving client cannot churn the
// devices table.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	return NewRateLimiterWithNow(limit, period, time.Now)
}

func NewRateLimiterWithNow(limit int, period time.Duration, now func() time.Time) *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     now,
	}
	go rl.sweep()
	return rl
}

// sweep drops expired windows so idle keys do not accumulate.
func (rl *RateLimiter) sweep() {
	if rl.period <= 0 {
		return
	}

	ticker := time.NewTicker(rl.period)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := rl.now()
		for key, w := range rl.windows {
			if now.After(w.resetAt) {
				delete(rl.windows, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Allow counts one request for key and reports whether it fits in the
// current window.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || now.After(w.resetAt) {
		rl.windows[key] = &window{count: 1, resetAt: now.Add(rl.period)}
		return true
	}

	if w.count >= rl.limit {
		return false
	}

	w.count++
	return true
}

// RateLimit rejects requests over the per-IP limit with 429.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
