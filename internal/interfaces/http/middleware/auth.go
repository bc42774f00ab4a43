// internal/interfaces/http/middleware/auth.go
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/shop-backend/internal/pkg/auth"
)

const (
	memberIDKey    = "member_id"
	memberEmailKey = "member_email"
	memberRoleKey  = "member_role"
	claimsKey      = "token_claims"
)

// AuthMiddleware creates JWT authentication middleware
func AuthMiddleware(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			return
		}

		// Extract token from header
		tokenString := auth.ExtractTokenFromHeader(authHeader)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format",
			})
			return
		}

		// Validate access token; reset tokens are rejected here
		claims, err := jwtManager.ValidateAccessToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		// Store member information in context
		c.Set(memberIDKey, claims.MemberID)
		c.Set(memberEmailKey, claims.Email)
		c.Set(memberRoleKey, claims.Role)
		c.Set(claimsKey, claims)

		c.Next()
	}
}

// AdminMiddleware ensures the member is an admin. It must run after AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(claimsKey); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		if !IsAdminFromContext(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Admin access required",
			})
			return
		}

		c.Next()
	}
}

// GetMemberIDFromContext extracts the member ID from gin context
func GetMemberIDFromContext(c *gin.Context) (uint, bool) {
	id, exists := c.Get(memberIDKey)
	if !exists {
		return 0, false
	}
	memberID, ok := id.(uint)
	return memberID, ok
}

// GetMemberEmailFromContext extracts the member email from gin context
func GetMemberEmailFromContext(c *gin.Context) (string, bool) {
	v, exists := c.Get(memberEmailKey)
	if !exists {
		return "", false
	}
	email, ok := v.(string)
	return email, ok
}

// IsAdminFromContext checks if the member is an admin
func IsAdminFromContext(c *gin.Context) bool {
	v, exists := c.Get(claimsKey)
	if !exists {
		return false
	}
	claims, ok := v.(*auth.Claims)
	return ok && claims.IsAdmin()
}
