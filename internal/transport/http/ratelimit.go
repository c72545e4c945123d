package http

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/teamchat-server/internal/ratelimit"
)

// RateLimitMiddleware throttles requests per user within scope. A nil limiter
// disables the check. Limiter failures let the request through.
func RateLimitMiddleware(limiter ratelimit.Limiter, scope string, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		identity, ok := currentIdentity(c, logger)
		if !ok {
			c.Abort()
			return
		}

		res, err := limiter.Allow(c.Request.Context(), scope+":"+identity.ID)
		if err != nil {
			logger.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable")
			c.Next()
			return
		}
		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if !res.Allowed {
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			logger.Debug().Str("scope", scope).Str("user", identity.ID).Msg("rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}
