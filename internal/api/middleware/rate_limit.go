package middleware

import (
	"Tradelink/internal/pkg/metrics"
	"Tradelink/internal/pkg/ratelimit"
	"Tradelink/internal/pkg/response"
	"Tradelink/internal/service"

	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware 按当前用户限流，需放在鉴权之后
func RateLimitMiddleware(route string, pool *ratelimit.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if who := service.IdentityFrom(c.Request.Context()); who != nil {
			key = who.ID
		}

		if !pool.Allow(key) {
			metrics.RateLimited.WithLabelValues(route).Inc()
			c.Header("Retry-After", "1")
			response.Error(c, service.ErrTooManyRequests)
			c.Abort()
			return
		}
		c.Next()
	}
}
