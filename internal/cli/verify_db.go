package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/persistence/database"
	"github.com/spf13/cobra"
)

func newVerifyDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-db",
		Short: "Check that the configured database answers a test query",
		Long: `Open a connection with the configured driver (sqlite3 or libsql) and run
SELECT 1. Use it to validate TURSO_DATABASE_URL and TURSO_AUTH_TOKEN before
deploying.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			logCfg := logging.DefaultLoggerConfig()
			logCfg.Output = os.Stderr
			logCfg.DefaultLevel = levelForCLI()
			logger, err := logging.NewChanneledLogger(logCfg)
			if err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			defer logger.Close()

			cfg := database.NewConfig()
			if err := database.VerifyConnectionWithLogger(ctx, cfg, logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database ok (%s)\n", cfg.Driver)
			return nil
		},
	}
}
