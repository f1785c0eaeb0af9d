package middleware

import (
	"context"
	"fmt"
	"time"

	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Limiter is the fixed-window counter behind the rate limit middleware.
type Limiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration, code pkgerrors.ErrorCode) error
}

type RateLimitPolicy struct {
	Window  time.Duration
	UserMax int
	IPMax   int
}

// RateLimitMiddleware enforces per-route limits keyed by client IP and, when authenticated, by user.
func RateLimitMiddleware(limiter Limiter, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		if policy.IPMax > 0 {
			key := fmt.Sprintf("arena:rate:ip:%s:%s", c.ClientIP(), routeKey)
			if err := limiter.Allow(ctx, key, policy.IPMax, policy.Window, pkgerrors.TooManyRequests); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}
		if userID := CurrentUserID(c); policy.UserMax > 0 && userID > 0 {
			key := fmt.Sprintf("arena:rate:user:%d:%s", userID, routeKey)
			if err := limiter.Allow(ctx, key, policy.UserMax, policy.Window, pkgerrors.TooManyRequests); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}
		c.Next()
	}
}
