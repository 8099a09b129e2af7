package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/application/container"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/health"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/compliance-core/pkg/config"
	"github.com/spf13/cobra"
)

// ErrCriticalHealth is returned when the one-shot run scores critical.
var ErrCriticalHealth = errors.New("system health is critical")

type healthOutput struct {
	Report health.Report             `json:"report"`
	Status health.SystemHealthStatus `json:"status"`
}

func newHealthCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Run the health checks once and print the report as JSON",
		Long: `Run every health check once against the configured database and print
the scored report as JSON on stdout. Logs go to stderr.

The command fails when the overall status is critical, so it can back a
container liveness probe.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			logCfg := logging.DefaultLoggerConfig()
			logCfg.Output = os.Stderr
			logCfg.DefaultLevel = levelForCLI()
			logger, err := logging.NewChanneledLogger(logCfg)
			if err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			defer logger.Close()

			c, err := container.NewContainer(ctx, logger, time.Now())
			if err != nil {
				return err
			}
			defer c.Close()

			status := c.HealthEngine.Run(ctx)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(healthOutput{Report: health.BuildReport(status), Status: status}); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}

			if status.Overall == health.OverallCritical {
				return ErrCriticalHealth
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", config.HealthCheckTimeout*5, "overall deadline for the run")
	return cmd
}

// levelForCLI keeps one-shot commands quiet unless gin runs in debug mode.
func levelForCLI() slog.Level {
	if config.GinMode == "debug" {
		return slog.LevelInfo
	}
	return slog.LevelWarn
}
