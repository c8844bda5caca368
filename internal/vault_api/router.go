package vault_api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gaming-vault-ledger/internal/platform/metrics"
	"github.com/gaming-vault-ledger/internal/vault_api/handler"
	"github.com/gaming-vault-ledger/internal/vault_api/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	gatherer prometheus.Gatherer,
	vaultHandler *handler.VaultHandler,
	shiftHandler *handler.ShiftHandler,
	collectionHandler *handler.CollectionHandler,
) {
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Actor())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))

	v1 := r.Group("/api/v1")
	{
		vaults := v1.Group("/vaults")
		{
			vaults.POST("", vaultHandler.Provision)
			vaults.GET("/:id", vaultHandler.GetBalance)
			vaults.POST("/:id/adjustments", vaultHandler.Adjust)
			vaults.POST("/:id/reconciliations", vaultHandler.Reconcile)
			vaults.POST("/:id/cash-arrivals", vaultHandler.AddCashArrival)
			vaults.GET("/:id/audit", vaultHandler.GetAuditHistory)
		}

		shifts := v1.Group("/shifts")
		{
			shifts.POST("", shiftHandler.Open)
			shifts.POST("/force-close", shiftHandler.ForceClose)
			shifts.GET("/:id", shiftHandler.Get)
			shifts.POST("/:id/transactions", shiftHandler.RecordTransaction)
			shifts.POST("/:id/close", shiftHandler.Close)
			shifts.POST("/:id/resolve", shiftHandler.Resolve)
			shifts.POST("/:id/reject", shiftHandler.Reject)
		}

		collections := v1.Group("/collections")
		{
			collections.POST("", collectionHandler.StartOrGet)
			collections.GET("/:id", collectionHandler.Get)
			collections.POST("/:id/entries", collectionHandler.AddEntry)
			collections.DELETE("/:id/entries/:machineId", collectionHandler.RemoveEntry)
			collections.POST("/:id/finalize", collectionHandler.Finalize)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	}
}
