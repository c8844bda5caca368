package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gaming-vault-ledger/internal/components"
	"github.com/gaming-vault-ledger/internal/config"
	"github.com/gaming-vault-ledger/internal/logger"
	"github.com/gaming-vault-ledger/internal/platform/metrics"
	"github.com/gaming-vault-ledger/internal/platform/persistence"
	"github.com/gaming-vault-ledger/internal/vault_api"
	"github.com/gaming-vault-ledger/internal/vault_api/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("vault_api")
	if err != nil {
		// logger is not initialized yet
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	locker, closeLocker, err := components.CreateLocker(appCtx, log, cfg)
	if err != nil {
		log.Error("Failed to initialize locker", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	eng := components.CreateEngine(log, cfg, postgresDB, mongoDB, locker, recorder)
	history := service.NewAuditHistoryService(log, eng.Projection, eng.Ledger)

	deps := vault_api.Dependencies{
		Ledger:      eng.Ledger,
		Shifts:      eng.Shifts,
		Collections: eng.Collections,
		History:     history,
	}
	if cfg.Metrics.Enabled {
		deps.Gatherer = registry
	}
	server := vault_api.NewServer(log, cfg, deps)
	log.Info("REST server initialized")

	errChan := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Drain in-flight requests before the pools they use go away
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	postgresDB.Close()

	if closeErr := closeLocker(); closeErr != nil {
		log.Error("Error closing lock backend", "error", closeErr)
		err = closeErr
	}

	if closeErr := mongoDB.Close(shutdownCtx); closeErr != nil {
		log.Error("Error closing MongoDB connection", "error", closeErr)
		err = closeErr
	}

	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
