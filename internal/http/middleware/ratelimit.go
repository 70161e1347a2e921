package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/HMarcusWH/company-truth-weave-sub000/internal/ratelimit"
)

// RateLimit rejects callers over their window budget with 429. A nil limiter
// disables limiting entirely.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		caller := CallerID(c)
		if !limiter.Allow(c.Request.Context(), caller) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{"message": fmt.Sprintf("rate limit exceeded for %s", caller), "code": "rate_limited"},
			})
			return
		}
		c.Next()
	}
}
