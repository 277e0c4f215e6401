package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/relaystream/pkg/api/auth"
	"github.com/marmos91/relaystream/pkg/config"
)

var (
	tokenSubject string
	tokenRole    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin API token",
	Long: `Sign a JWT for the admin API with the configured secret.

Examples:
  # Full admin token valid for admin.token_duration
  relaystream token

  # Read-only token for a dashboard, valid one week
  relaystream token --subject grafana --role viewer --ttl 168h

  # Use it
  export RELAYSTREAM_TOKEN=$(relaystream token)
  relaystream workers`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "Token subject")
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleAdmin, "Token role (admin, viewer)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default: admin.token_duration)")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if cfg.Admin.JWTSecret == "" {
		return fmt.Errorf("admin.jwt_secret is not configured")
	}

	svc, err := auth.NewJWTService(auth.JWTConfig{
		Secret:        cfg.Admin.JWTSecret,
		TokenDuration: cfg.Admin.TokenDuration,
	})
	if err != nil {
		return err
	}

	token, expires, err := svc.IssueToken(tokenSubject, tokenRole, tokenTTL)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Local().Format(time.RFC1123))
	return nil
}
