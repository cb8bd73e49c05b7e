package middleware

import (
	"net/http"

	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/http/httperr"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimitPerIP отдаёт 429, когда IP исчерпал свою квоту.
func RateLimitPerIP(l *ratelimit.PerKey) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.ErrorResponse{
				Error:   httperr.CodeRateLimited,
				Message: "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
