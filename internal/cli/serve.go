// Package cli holds the signals-gate subcommands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MichaelMishaev/signals-sub003/internal/application/startup"
	"github.com/MichaelMishaev/signals-sub003/pkg/config"
)

// ServeCmd returns the command that runs the HTTP server.
func ServeCmd() *cobra.Command {
	var policyFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gate and verification API",
		Long: `Start the HTTP server. Configuration is read from the environment
and an optional .env file in the working directory.

Examples:
  signals-gate serve
  signals-gate serve --policy deploy/policy.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if policyFile != "" {
				cfg.PolicyFile = policyFile
			}
			policy, err := config.LoadPolicy(cfg.PolicyFile)
			if err != nil {
				return fmt.Errorf("load policy: %w", err)
			}
			return startup.Initialize(cfg, policy)
		},
	}

	cmd.Flags().StringVar(&policyFile, "policy", "", "gate policy YAML (overrides GATE_POLICY_FILE)")
	return cmd
}
