package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoAuth is a pass-through middleware for AUTH_MODE=none (local use).
func NoAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextUserID, "anonymous")
		c.Next()
	}
}
