package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lumivid/messaging/pkg/jwt"
	"github.com/lumivid/messaging/pkg/log"
	"github.com/lumivid/messaging/pkg/response"
)

// AuthRequired validates the bearer token and stores the caller's
// identity on the gin context.
func AuthRequired(manager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			response.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}

		claims, err := manager.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(log.FieldUserID, claims.UserID)
		c.Set(log.FieldUsername, claims.Username)
		c.Next()
	}
}

// currentUserID returns the authenticated user id set by AuthRequired.
func currentUserID(c *gin.Context) string {
	return c.GetString(log.FieldUserID)
}
