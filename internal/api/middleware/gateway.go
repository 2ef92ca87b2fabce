package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// ContextUserID is the gin context key holding the caller's id
	ContextUserID = "user_id"
	// ContextUserEmail is the gin context key holding the caller's email, when known
	ContextUserEmail = "user_email"
	// ContextUserRole is the gin context key holding the caller's role, when known
	ContextUserRole = "user_role"

	headerUserID    = "X-User-ID"
	headerUserEmail = "X-User-Email"
	headerUserRole  = "X-User-Role"
)

// GatewayAuth trusts user info from gateway headers (X-User-ID, X-User-Email, X-User-Role).
//
// When AUTH_MODE=gateway the API trusts these headers unconditionally, so it
// must only be reachable through the gateway.
func GatewayAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(headerUserID)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Authentication required",
				"message": "Missing X-User-ID header from gateway",
			})
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextUserEmail, c.GetHeader(headerUserEmail))
		c.Set(ContextUserRole, c.GetHeader(headerUserRole))
		c.Next()
	}
}

// GetUserID returns the authenticated caller's id, if any
func GetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextUserID)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}
