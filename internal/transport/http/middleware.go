package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/teamchat-server/internal/auth"
)

// ContextKeyIdentity is the context key for storing the resolved session identity.
const ContextKeyIdentity = "identity"

// SessionMiddleware resolves the caller's session and rejects requests without one.
func SessionMiddleware(resolver auth.SessionResolver, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := resolver.Resolve(c.Request.Context(), auth.CredentialsFromRequest(c.Request))
		if err != nil {
			if errors.Is(err, auth.ErrNoSession) {
				logger.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("no session")
				c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
				return
			}
			logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("failed to resolve session")
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "Unable to resolve session"})
			return
		}

		c.Set(ContextKeyIdentity, identity)
		c.Next()
	}
}

// currentIdentity returns the identity stored by SessionMiddleware.
func currentIdentity(c *gin.Context, logger *zerolog.Logger) (*auth.Identity, bool) {
	v, exists := c.Get(ContextKeyIdentity)
	if !exists {
		logger.Error().Msg("identity not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return nil, false
	}
	identity, ok := v.(*auth.Identity)
	if !ok || identity == nil {
		logger.Error().Msg("invalid identity type in context")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgInternal})
		return nil, false
	}
	return identity, true
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		ev := logger.Info()
		if status >= http.StatusInternalServerError {
			ev = logger.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}

// CORSMiddleware allows credentialed requests from the web client origin.
func CORSMiddleware(webBaseURL string) gin.HandlerFunc {
	allowed := strings.TrimRight(webBaseURL, "/")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && origin == allowed {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
