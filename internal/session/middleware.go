package session

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sentra-auth/sentra/internal/logging"
)

const contextKey = "session"

// Middleware authenticates requests via the Authorization bearer token and
// stores the resolved session in the gin context. Requests with revoked or
// expired sessions get a 401 with a reason the client can act on.
func Middleware(manager *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		s, err := manager.Validate(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reasonFor(err)})
			return
		}

		ctx := logging.WithSessionID(c.Request.Context(), s.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextKey, s)
		c.Next()
	}
}

// FromContext returns the session the middleware attached.
func FromContext(c *gin.Context) (*Session, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*Session)
	return s, ok
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrRevoked):
		return "session revoked"
	case errors.Is(err, ErrExpired):
		return "session expired"
	case errors.Is(err, ErrNotFound):
		return "session not found"
	default:
		return "invalid session token"
	}
}
