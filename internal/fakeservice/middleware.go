package fakeservice

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"commenthub/pkg/logger"
	"commenthub/pkg/models"
)

const userKey = "user"

// authMiddleware resolves the bearer token into a user. With required set,
// requests without a valid token are rejected with 401.
func (s *Service) authMiddleware(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
				return
			}
			c.Next()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid authorization format"})
			return
		}

		user, err := s.validate(parts[1], tokenAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Given token not valid for any token type"})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// currentUser retrieves the authenticated user from the context
func currentUser(c *gin.Context) (*models.User, bool) {
	v, exists := c.Get(userKey)
	if !exists {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok
}

// requestLogger logs every exchange, tagged with the caller's X-Request-ID
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(map[string]interface{}{
			"request_id": c.GetHeader("X-Request-ID"),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		}).Debug(c.Request.Method + " " + c.Request.URL.Path)
	}
}
