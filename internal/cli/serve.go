package cli

import (
	"github.com/AtRiskMedia/compliance-core/internal/application/startup"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and background jobs",
		Long: `Start the HTTP server together with the metrics flush, health check,
alert evaluation, cache cleanup and telemetry retention jobs.

SIGINT or SIGTERM stops the server, drains buffered metrics and waits for
pending alert notifications before exiting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	return startup.Initialize()
}
