package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MichaelMishaev/signals-sub003/internal/cli"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "signals-gate",
		Short:   "Progressive access gating for the signals publisher",
		Version: version,
		Long: `signals-gate serves the content gate, popup triggers and email
verification API used by the signals site.`,
	}

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.PolicyCmd())
	rootCmd.AddCommand(cli.TokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
