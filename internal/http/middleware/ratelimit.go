package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-alliance-bot/internal/ratelimit"
)

// KeyFunc selects the bucket a request draws from.
type KeyFunc func(*gin.Context) string

// KeyByClientIP buckets requests per client address.
func KeyByClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// RateLimit rejects requests whose bucket is empty with 429 and
// Retry-After: 1. A nil limiter disables limiting.
func RateLimit(l *ratelimit.Keyed, key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = KeyByClientIP
	}
	return func(c *gin.Context) {
		if l.Allow(key(c)) {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}
