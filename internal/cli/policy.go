package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/MichaelMishaev/signals-sub003/internal/domain/gating"
	"github.com/MichaelMishaev/signals-sub003/pkg/config"
)

// PolicyCmd returns the policy inspection commands.
func PolicyCmd() *cobra.Command {
	var policyFile string

	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the gate policy",
	}
	cmd.PersistentFlags().StringVar(&policyFile, "file", "", "gate policy YAML (default: built-in policy)")

	cmd.AddCommand(policyShowCmd(&policyFile))
	cmd.AddCommand(policyDecideCmd(&policyFile))
	return cmd
}

func policyShowCmd(policyFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective policy as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := config.LoadPolicy(*policyFile)
			if err != nil {
				return err
			}
			out, err := config.MarshalPolicy(policy)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func policyDecideCmd(policyFile *string) *cobra.Command {
	var drills int
	var hasEmail, hasBroker bool

	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Show the gate each successive drill view would raise",
		Long: `Walk a fresh session through N distinct drill views and print the
gate decision after each one.

Examples:
  signals-gate policy decide --drills 5
  signals-gate policy decide --drills 12 --email`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if drills < 1 {
				return fmt.Errorf("--drills must be at least 1")
			}
			policy, err := config.LoadPolicy(*policyFile)
			if err != nil {
				return err
			}
			renderDecisions(cmd.OutOrStdout(), policy.Gates, drills, hasEmail, hasBroker)
			return nil
		},
	}

	cmd.Flags().IntVar(&drills, "drills", 5, "number of distinct drills to view")
	cmd.Flags().BoolVar(&hasEmail, "email", false, "visitor has a verified email")
	cmd.Flags().BoolVar(&hasBroker, "broker", false, "visitor has a broker account")
	return cmd
}

func renderDecisions(w io.Writer, gates gating.GatePolicyConfig, drills int, hasEmail, hasBroker bool) {
	fmt.Fprintf(w, "email=%t broker=%t\n", hasEmail, hasBroker)
	fmt.Fprintln(w, "View  Gate")
	fmt.Fprintln(w, "──────────────────")
	for n := 1; n <= drills; n++ {
		decision := gating.DecideView(n-1, n, hasEmail, hasBroker, gates)
		fmt.Fprintf(w, "%4d  %s\n", n, decisionLabel(decision, gates))
	}
}

func decisionLabel(d gating.GateDecision, gates gating.GatePolicyConfig) string {
	settings, ok := gates.Settings(d)
	if !ok {
		return color.New(color.FgGreen).Sprint("open")
	}
	label := string(d)
	if settings.Blocking {
		return color.New(color.FgRed).Sprintf("%s (blocking)", label)
	}
	return color.New(color.FgYellow).Sprintf("%s (dismissible)", label)
}
