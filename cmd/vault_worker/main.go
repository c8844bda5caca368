package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gaming-vault-ledger/internal/components"
	"github.com/gaming-vault-ledger/internal/config"
	projection "github.com/gaming-vault-ledger/internal/data/mongo"
	"github.com/gaming-vault-ledger/internal/logger"
	"github.com/gaming-vault-ledger/internal/platform/messaging/consumers"
	"github.com/gaming-vault-ledger/internal/platform/messaging/producers"
	"github.com/gaming-vault-ledger/internal/platform/metrics"
	"github.com/gaming-vault-ledger/internal/platform/persistence"
	"github.com/gaming-vault-ledger/internal/vault_worker/consumer"
	"github.com/gaming-vault-ledger/internal/vault_worker/outbox_poller"
	"github.com/gaming-vault-ledger/internal/vault_worker/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("vault_worker")
	if err != nil {
		// logger is not initialized yet
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Vault Worker",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

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
	if err := mongoDB.EnsureIndexes(appCtx, projection.AuditCollectionName, projection.AuditIndexes()...); err != nil {
		log.Error("Failed to ensure audit projection indexes", "error", err)
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

	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)

	// nil when no DLQ topic is configured; the handler tolerates that
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}

	var events producers.MessagePublisher
	var eventProducer *producers.VaultEventProducer
	if cfg.Kafka.VaultEventsTopic != "" {
		eventProducer, err = producers.NewVaultEventProducer(appCtx, log, &cfg.Kafka)
		if err != nil {
			log.Error("Failed to initialize vault events producer", "error", err)
			os.Exit(1)
		}
		events = eventProducer
	} else {
		log.Warn("Vault events topic not configured, audit records are only projected")
	}

	processingService := components.CreateProcessingService(eng.Ledger, cfg, log)

	cashDropHandler := consumer.NewCashDropHandler(
		log.With("component", "cash_drop_handler"),
		processingService,
		dlqProducer,
		recorder,
	)

	recordPublisher := outbox_poller.NewAuditRecordPublisher(
		eng.OutboxRepo,
		eng.Projection,
		events,
		log.With("component", "record_publisher"),
	)
	poller := outbox_poller.NewPoller(
		&cfg.Outbox,
		eng.OutboxRepo,
		recordPublisher,
		recorder,
		log.With("component", "outbox_poller"),
	)

	errChan := make(chan error, 3)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Kafka consumer",
			"topic", cfg.Kafka.CashDropTopic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := kafkaConsumer.Subscribe(appCtx, cashDropHandler.HandleMessage); err != nil {
			errChan <- fmt.Errorf("kafka consumer error: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Outbox Poller",
			"interval", cfg.Outbox.PollingInterval.String(),
			"batch_size", cfg.Outbox.BatchSize,
		)
		poller.Start(appCtx)
	}()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(registry))
		metricsServer = &http.Server{
			Addr:              ":" + strconv.Itoa(cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("Starting metrics listener", "port", cfg.Metrics.Port)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics listener error: %w", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	cancelAppCtx()

	if wpService, ok := processingService.(*service.WorkerPoolProcessingService); ok {
		log.Info("Shutting down worker pool", "running_workers", wpService.Running())
		wpService.Shutdown()
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	var shutdownErr error
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Error stopping metrics listener", "error", err)
			shutdownErr = err
		}
	}

	if dlqProducer != nil {
		if err := dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
			shutdownErr = err
		}
	}

	if eventProducer != nil {
		if err := eventProducer.Close(); err != nil {
			log.Error("Error closing vault events producer", "error", err)
			shutdownErr = err
		}
	}

	if err := kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
		shutdownErr = err
	}

	postgresDB.Close()

	if err := closeLocker(); err != nil {
		log.Error("Error closing lock backend", "error", err)
		shutdownErr = err
	}

	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
		shutdownErr = err
	}

	if serviceErr != nil {
		log.Error("Vault Worker shutdown with errors", "error", serviceErr)
	}
	if shutdownErr != nil {
		log.Error("Vault Worker shutdown completed with errors")
	} else {
		log.Info("Vault Worker shutdown completed successfully")
	}
}
