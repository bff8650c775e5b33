package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"horizon.shop/internal/auth"
	"horizon.shop/internal/config"
)

// tokenCmd mints a token with the configured secret, for operators and smoke tests.
func tokenCmd(configPath *string) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <email>",
		Short: "Issue an identity token for email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.TokenTTL
			}
			tokens, err := auth.NewTokenService(cfg.TokenSecret, ttl)
			if err != nil {
				return err
			}
			tok, err := tokens.Issue(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Value)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", tok.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to HORIZON_TOKEN_TTL)")
	return cmd
}
