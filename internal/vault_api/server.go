package vault_api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gaming-vault-ledger/internal/config"
	"github.com/gaming-vault-ledger/internal/engine"
	"github.com/gaming-vault-ledger/internal/vault_api/handler"
	"github.com/gaming-vault-ledger/internal/vault_api/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Server owns the HTTP listener of the vault API
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
	httpRouter *gin.Engine
}

// Dependencies are the engine surfaces the API exposes
type Dependencies struct {
	Ledger      engine.VaultLedger
	Shifts      engine.ShiftReconciler
	Collections engine.CollectionAggregator
	History     service.AuditHistoryService
	Gatherer    prometheus.Gatherer
}

func NewServer(log *slog.Logger, cfg *config.Config, deps Dependencies) *Server {
	if cfg.Application.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	httpRouter := gin.New()

	setupRouter(log, httpRouter, deps.Gatherer,
		handler.NewVaultHandler(log, deps.Ledger, deps.History),
		handler.NewShiftHandler(log, deps.Shifts),
		handler.NewCollectionHandler(log, deps.Collections),
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		logger:     log,
		httpServer: httpServer,
		httpRouter: httpRouter,
	}
}

// Handler exposes the router for in-process tests
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// Start blocks until the listener stops
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx expires
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}
	return nil
}
