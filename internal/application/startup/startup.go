// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/application/container"
	"github.com/AtRiskMedia/compliance-core/internal/presentation/http/server"
	"github.com/AtRiskMedia/compliance-core/pkg/config"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 30 * time.Second

// Initialize performs the complete startup sequence and blocks until a
// shutdown signal arrives.
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	log.Println("\033[32m" + `
  compliance-core
` + "\033[97m" + `
  cache, metrics, health and alerting
` + "\033[0m")

	// Step 1: Channeled logging
	logger, err := container.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logger.Close()
	logger.Startup().Info("Channeled logging initialized", "toFile", config.LogToFile, "json", config.LogJSON)

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	// Step 2: Dependency injection container, database and schema
	phaseStart := time.Now()
	appContainer, err := container.NewContainer(ctx, logger, start)
	if err != nil {
		logger.LogStartupPhase("container", time.Since(phaseStart), false)
		return err
	}
	defer appContainer.Close()
	logger.LogStartupPhase("container", time.Since(phaseStart), true)

	// Step 3: First health run so the report is populated before serving
	phaseStart = time.Now()
	status := appContainer.HealthEngine.Run(ctx)
	logger.Startup().Info("Initial health run", "overall", status.Overall, "score", status.Score)
	logger.LogStartupPhase("initial-health-run", time.Since(phaseStart), true)

	// Step 4: Background jobs
	phaseStart = time.Now()
	if err := appContainer.Scheduler.Start(ctx); err != nil {
		logger.LogStartupPhase("scheduler", time.Since(phaseStart), false)
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	logger.Startup().Info("Background jobs started", "jobs", appContainer.Scheduler.Jobs())
	logger.LogStartupPhase("scheduler", time.Since(phaseStart), true)

	// Step 5: HTTP server
	phaseStart = time.Now()
	httpServer := server.New(config.Port, appContainer)
	logger.LogStartupPhase("http-server", time.Since(phaseStart), true)

	// Step 6: Setup graceful shutdown
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"port", config.Port)

	select {
	case <-gracefulShutdown:
		logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")
	case err := <-serverErr:
		if err != nil {
			logger.Shutdown().Error("HTTP server failed", "error", err.Error())
		}
	}

	shutdownStart := time.Now()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop accepting requests before draining so no new samples arrive.
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	cancelBackgroundTasks()
	if err := appContainer.Scheduler.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error draining background jobs", "error", err.Error())
	} else {
		logger.Shutdown().Info("Background jobs drained")
	}

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return nil
}

// setupLogging configures application logging
func setupLogging() {
	if config.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
