// internal/interfaces/http/middleware/auth.go
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/asset-inventory/internal/config"
	"github.com/your-org/asset-inventory/internal/pkg/auth"
)

// Context keys set by AuthMiddleware
const (
	ContextUserID   = "user_id"
	ContextUserName = "user_name"
	ContextUserRole = "user_role"
)

// AuthMiddleware creates JWT authentication middleware
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	jwtManager := auth.NewJWTManager(cfg)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			c.Abort()
			return
		}

		tokenString := auth.ExtractTokenFromHeader(authHeader)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format",
			})
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateAccessToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		// Store user information in context
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserName, claims.Name)
		c.Set(ContextUserRole, claims.Role)
		c.Set("token_claims", claims)

		c.Next()
	}
}

// RequireRole lets through users holding one of roles. Admins always pass.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ContextUserRole)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			c.Abort()
			return
		}

		if !HasRole(role.(string), roles...) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Insufficient role",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// HasRole reports whether role is admin or one of roles
func HasRole(role string, roles ...string) bool {
	if role == "admin" {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// GetUserIDFromContext extracts user ID from gin context
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	return c.GetString(ContextUserID), c.GetString(ContextUserID) != ""
}

// GetUserNameFromContext extracts the display name, falling back to the id
func GetUserNameFromContext(c *gin.Context) string {
	if name := c.GetString(ContextUserName); name != "" {
		return name
	}
	return c.GetString(ContextUserID)
}

// GetUserRoleFromContext extracts the role from gin context
func GetUserRoleFromContext(c *gin.Context) string {
	return c.GetString(ContextUserRole)
}
