package middleware

import (
	"net/http"
	"strings"

	"github.com/clubstack/memberhub/internal/utils"
	"github.com/gin-gonic/gin"
)

const (
	ContextMemberID = "member_id"
	ContextName     = "member_name"
	ContextRole     = "role"
)

// AuthRequired is a middleware that checks for a valid JWT token
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(ContextMemberID, claims.MemberID)
		c.Set(ContextName, claims.Name)
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

// AdminRequired is a middleware that checks for admin role
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ContextRole)
		if !exists || role != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetMemberID gets the authenticated member id from context
func GetMemberID(c *gin.Context) string {
	if id, exists := c.Get(ContextMemberID); exists {
		return id.(string)
	}
	return ""
}

// GetRole gets the current member role from context
func GetRole(c *gin.Context) string {
	if role, exists := c.Get(ContextRole); exists {
		return role.(string)
	}
	return ""
}

// IsAdmin reports whether the current caller has the admin role.
func IsAdmin(c *gin.Context) bool {
	return GetRole(c) == "admin"
}
