package middleware

import (
	"github.com/Conceptual-Machines/variation-explorer/internal/config"
	"github.com/gin-gonic/gin"
)

// Auth selects the auth middleware for cfg.AuthMode. Unknown modes fall back
// to no auth, matching the local-first default.
func Auth(cfg *config.Config) (gin.HandlerFunc, error) {
	switch {
	case cfg.IsJWTMode():
		if cfg.JWTSecret == "" {
			return nil, ErrMissingSecret
		}
		return JWTAuth(cfg.JWTSecret), nil
	case cfg.IsGatewayMode():
		return GatewayAuth(), nil
	default:
		return NoAuth(), nil
	}
}
