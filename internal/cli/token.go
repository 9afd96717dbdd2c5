package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/zerocache/auth"
	"github.com/jonwraymond/zerocache/secret"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
		roles   []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a JWT accepted by serve",
		Long: `Issue an HS256 JWT signed with server.auth.jwt_secret.

The token carries the configured issuer and audience, so a server started
from the same configuration accepts it.`,
		Example: `  ZEROCACHE_SERVER_AUTH_JWT_SECRET=secretref:env:JWT_KEY zerocache token --subject worker --role admin`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ac := a.cfg.Server.Auth
			if ac.JWTSecret == "" {
				return errors.New("server.auth.jwt_secret is not set")
			}
			resolver, err := secret.NewDefaultResolver()
			if err != nil {
				return err
			}
			defer func() { _ = resolver.Close() }()

			key, err := resolver.ResolveValue(cmd.Context(), ac.JWTSecret)
			if err != nil {
				return fmt.Errorf("resolve jwt secret: %w", err)
			}
			signer, err := auth.NewSigner([]byte(key), ac.JWTIssuer, ac.JWTAudience)
			if err != nil {
				return err
			}
			token, err := signer.Sign(subject, ttl, roles...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "principal the token identifies")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role granted; repeatable")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
