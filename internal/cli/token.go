package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/Conceptual-Machines/variation-explorer/internal/api/middleware"
	"github.com/Conceptual-Machines/variation-explorer/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenEmail   string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for AUTH_MODE=jwt",
	Long: `Signs an HS256 token with JWT_SECRET so a local UI or script can call the
API when the server runs with AUTH_MODE=jwt.`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "token subject (required)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "optional email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}

func runToken(cmd *cobra.Command, args []string) error {
	if tokenSubject == "" {
		return errors.New("--subject is required")
	}
	if tokenTTL <= 0 {
		return errors.New("--ttl must be positive")
	}

	cfg := config.Load()
	now := time.Now()
	token, err := middleware.IssueToken(cfg.JWTSecret, middleware.Claims{
		Email: tokenEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tokenSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
