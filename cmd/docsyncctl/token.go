package main

import (
	"fmt"
	"time"

	"github.com/rapidoc/docsync/internal/config"
	"github.com/rapidoc/docsync/internal/tokens"
	"github.com/rapidoc/docsync/internal/users"
	"github.com/spf13/cobra"
)

var (
	tokenTTL   time.Duration
	tokenName  string
	tokenEmail string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an HS256 access token for --user using JWT_SECRET",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if userID == "" {
			return fmt.Errorf("--user is required")
		}
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.JWT.AccessTokenTTL
		}
		tok, err := tokens.GenerateAccessToken(cfg.JWT.Secret, &users.User{Sub: userID, Name: tokenName, Email: tokenEmail}, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default JWT_ACCESS_TOKEN_TTL)")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "name claim")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
}
