package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/coursedesk/internal/observability/logger"
	"go.uber.org/zap"
)

// limitBulk fails open when redis cannot be reached.
func (s *Server) limitBulk() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.bulkLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		res, err := s.bulkLimiter.Allow(ctx, actorID(c))
		if err != nil {
			logger.FromContext(ctx).Warn("bulk rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrTooManyRequests)
			return
		}

		c.Next()
	}
}
