package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sumfields/sumfields/internal/cli/ui"
	"github.com/sumfields/sumfields/internal/web/auth"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

// NewAuthCommand creates the auth command
func NewAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Create API credentials",
		Long: `Create credentials for the API.

Available subcommands:
  token  - Sign a bearer token with auth.jwt_secret
  key    - Generate an API key and the hash to store in auth.api_key_hash`,
	}

	cmd.AddCommand(newAuthTokenCommand())
	cmd.AddCommand(newAuthKeyCommand())

	return cmd
}

func newAuthTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret not set\n\nExample:\n  export SUMFIELDS_AUTH_JWT_SECRET=\"$(openssl rand -hex 32)\"")
			}

			token, err := auth.NewAuthService(cfg.Auth.JWTSecret, tokenTTL).GenerateToken(tokenSubject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&tokenSubject, "subject", "cron", "Caller name recorded in the token")
	cmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (0 never expires)")

	return cmd
}

func newAuthKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "key",
		Short: "Generate an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := auth.GenerateKey()
			if err != nil {
				return err
			}
			hash, err := auth.HashKey(key)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			kv := ui.NewKeyValueTable(out, flags.noColor)
			kv.AddRow("API key", key)
			kv.AddRow("api_key_hash", hash)
			kv.Render()
			ui.Warning("The key is shown once. Give it to the caller and store only the hash.", flags.noColor).Write(out)
			return nil
		},
	}
}
