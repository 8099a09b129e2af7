// Package cli wires the compliance-core commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "compliance-core",
		Short: "Caching, metrics, health and alerting core for the compliance platform",
		Long: `compliance-core serves the observability API: a tag-invalidated cache in
front of record lookups, request metrics persisted in batches, scheduled
health checks and deduplicated alerts.

Running without a subcommand starts the server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	root.AddCommand(newServeCmd(), newHealthCmd(), newVerifyDBCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "compliance-core %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
