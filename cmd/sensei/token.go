package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/chukwu07/savings-sensei/internal/auth"
	"github.com/chukwu07/savings-sensei/internal/config"
	"github.com/spf13/cobra"
)

var (
	tokenUser string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for a user",
	Long:  "Sign a JWT with SENSEI_JWT_SECRET that scopes API calls to one user.",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User ID the token is issued for (required)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (defaults to auth.token_ttl)")
}

func runToken(cmd *cobra.Command, args []string) error {
	if tokenUser == "" {
		return errors.New("--user is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	ttl := tokenTTL
	if ttl == 0 {
		ttl = time.Duration(cfg.Auth.TokenTTL)
	}

	token, err := auth.GenerateToken(tokenUser, []byte(cfg.Auth.JWTSecret), ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
