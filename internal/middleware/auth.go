package middleware

import (
	"strings"

	"github.com/dinewithlocals/backend/internal/apperrors"
	"github.com/dinewithlocals/backend/pkg/utils"
	"github.com/gin-gonic/gin"
)

// Context keys set by AuthMiddleware.
const (
	ContextUserID   = "userId"
	ContextUserRole = "userRole"
)

// AuthMiddleware accepts a bearer token from the Authorization header, or
// from the token query parameter for websocket upgrades.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var tokenString string

		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				tokenString = strings.TrimSpace(parts[1])
			}
		}

		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			utils.RespondError(c, apperrors.Unauthorized("authorization header or token query parameter required"))
			return
		}

		claims, err := utils.ValidateToken(tokenString, secret)
		if err != nil {
			utils.RespondError(c, apperrors.Unauthorized("invalid token"))
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}

// CurrentUserID returns the authenticated user's ID, or 0 outside AuthMiddleware.
func CurrentUserID(c *gin.Context) uint {
	return c.GetUint(ContextUserID)
}

func IsAdmin(c *gin.Context) bool {
	return c.GetString(ContextUserRole) == "admin"
}
