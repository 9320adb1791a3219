package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/security"
)

// TokenCmd returns the command that mints admin bearer tokens.
func TokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin bearer token signed with ADMIN_JWT_SECRET",
		Long: `Print a bearer token accepted by the /api/v1/admin endpoints.

Examples:
  ADMIN_JWT_SECRET=... signals-gate token --subject ops --ttl 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("ADMIN_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("ADMIN_JWT_SECRET is not set")
			}
			token, err := security.GenerateAdminToken(subject, ttl, secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject recorded in admin logs")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
