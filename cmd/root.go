// Package cmd defines the CLI commands for the kontaktcrawler executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kontaktcrawler",
		Short: "Coordinated crawler that discovers employer contact emails",
		Long: `kontaktcrawler works through a shared Postgres backlog of job listings,
loads each listing in a headless browser and extracts employer contact
emails. Work is claimed atomically so multiple instances can run against
the same backlog without overlap.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWorkCmd())
	cmd.AddCommand(newRetryCmd())
	cmd.AddCommand(newSearchCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
