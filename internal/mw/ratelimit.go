package mw

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyedRateLimiter stores a rate limiter per caller key.
type KeyedRateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	r        rate.Limit
	b        int
}

// NewKeyedRateLimiter creates a new KeyedRateLimiter.
func NewKeyedRateLimiter(r rate.Limit, b int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        r,
		b:        b,
	}
}

// GetLimiter returns the limiter for key, creating it on first use.
func (l *KeyedRateLimiter) GetLimiter(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[key]
	l.mu.RUnlock()
	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, exists = l.limiters[key]; !exists {
		limiter = rate.NewLimiter(l.r, l.b)
		l.limiters[key] = limiter
	}
	return limiter
}

// Prune drops limiters whose bucket has refilled. Such a limiter behaves
// exactly like a new one, so callers seen once do not stay in the map.
// It returns how many were dropped.
func (l *KeyedRateLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	pruned := 0
	for key, limiter := range l.limiters {
		if limiter.Tokens() >= float64(l.b) {
			delete(l.limiters, key)
			pruned++
		}
	}
	return pruned
}

// Len is the number of callers tracked.
func (l *KeyedRateLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

// RateLimiter limits each signed-in user, or each client IP when there is
// no identity.
func RateLimiter(limiter *KeyedRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if id, ok := CurrentIdentity(c); ok {
			key = "user:" + id.UserID
		}
		if !limiter.GetLimiter(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":     "too many requests",
				"code":      "rate_limited",
				"retryable": true,
			})
			return
		}
		c.Next()
	}
}
