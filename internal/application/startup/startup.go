// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/application/container"
	"github.com/MichaelMishaev/signals-sub003/internal/domain/gating"
	schema "github.com/MichaelMishaev/signals-sub003/internal/infrastructure/database"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/persistence/database"
	"github.com/MichaelMishaev/signals-sub003/internal/presentation/http/server"
	"github.com/MichaelMishaev/signals-sub003/pkg/config"
	"github.com/gin-gonic/gin"
)

// NewLogger builds the channeled logger described by cfg.
func NewLogger(cfg *config.Config) (*logging.ChanneledLogger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	loggerConfig := logging.DefaultLoggerConfig()
	loggerConfig.OutputToFile = cfg.LogToFile
	loggerConfig.LogDirectory = cfg.LogDir
	loggerConfig.JSONFormat = cfg.LogJSON
	loggerConfig.IncludeSource = cfg.LogSource
	loggerConfig.DefaultLevel = level
	return logging.NewChanneledLogger(loggerConfig)
}

// Initialize performs the startup sequence and blocks until SIGINT or
// SIGTERM, then shuts down gracefully.
func Initialize(cfg *config.Config, policy gating.Policy) error {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	start := time.Now().UTC()

	logger, err := NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	// Step 1: Open the system of record
	phaseStart := time.Now()
	database.SetSlowQueryThreshold(time.Duration(cfg.SlowQueryMS) * time.Millisecond)
	db, err := database.NewConnectionWithLogger(cfg.DBDriver, cfg.DBURL, logger)
	if err != nil {
		logger.LogStartupPhase("database", time.Since(phaseStart), false)
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	logger.LogStartupPhase("database", time.Since(phaseStart), true)

	// Step 2: Bootstrap the schema
	phaseStart = time.Now()
	if err := schema.NewTableCreator().CreateSchema(ctx, db.DB); err != nil {
		logger.LogStartupPhase("schema", time.Since(phaseStart), false)
		return fmt.Errorf("failed to create schema: %w", err)
	}
	logger.LogStartupPhase("schema", time.Since(phaseStart), true)

	// Step 3: Create dependency injection container
	appContainer := container.NewContainer(cfg, policy, db, logger)
	defer appContainer.Close()
	logger.Startup().Info("Container initialized",
		"triggerAfterDrills", policy.Gates.TriggerAfterDrills,
		"triggerAfterEmailDrills", policy.Gates.TriggerAfterEmailDrills,
		"stateBackend", cfg.StateBackend,
		"verificationConfigured", cfg.VerificationConfigured())

	// Step 4: Start background cleanup worker
	go appContainer.CleanupWorker.Start(ctx)

	// Step 5: Start HTTP server
	httpServer := server.New(appContainer)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"address", httpServer.Addr())

	// Wait for shutdown signal or a listener failure
	select {
	case <-gracefulShutdown:
		logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")
	case err := <-serverErr:
		if err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
			return err
		}
	}

	shutdownStart := time.Now()
	cancelBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return nil
}
