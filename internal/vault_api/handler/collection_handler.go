package handler

import (
	"log/slog"
	"time"

	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/gaming-vault-ledger/internal/engine"
	"github.com/gaming-vault-ledger/internal/vault_api/middleware"
	"github.com/gin-gonic/gin"
)

// CollectionHandler serves soft-count collection sessions
type CollectionHandler struct {
	collections engine.CollectionAggregator
	logger      *slog.Logger
}

func NewCollectionHandler(logger *slog.Logger, collections engine.CollectionAggregator) *CollectionHandler {
	return &CollectionHandler{
		collections: collections,
		logger:      logger,
	}
}

// StartOrGet returns the open session for the key, creating it on first use
func (h *CollectionHandler) StartOrGet(c *gin.Context) {
	var req StartCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	session, err := h.collections.StartOrGetSession(c.Request.Context(), req.LocationID, req.VaultShiftID)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondOK(c, session)
}

func (h *CollectionHandler) Get(c *gin.Context) {
	sessionID, ok := parseID(c, "id", "session")
	if !ok {
		return
	}

	session, err := h.collections.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondOK(c, session)
}

func (h *CollectionHandler) AddEntry(c *gin.Context) {
	sessionID, ok := parseID(c, "id", "session")
	if !ok {
		return
	}

	var req CollectionEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	set, err := denomination.FromEntries(req.Denominations)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	var collectedAt time.Time
	if req.CollectedAt != nil {
		collectedAt = *req.CollectedAt
	}

	session, err := h.collections.AddEntry(c.Request.Context(), sessionID, engine.EntryRequest{
		MachineID:     req.MachineID,
		MachineName:   req.MachineName,
		Denominations: set,
		TotalAmount:   req.TotalAmount,
		CollectedAt:   collectedAt,
	})
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondCreated(c, session)
}

func (h *CollectionHandler) RemoveEntry(c *gin.Context) {
	sessionID, ok := parseID(c, "id", "session")
	if !ok {
		return
	}

	session, err := h.collections.RemoveEntry(c.Request.Context(), sessionID, c.Param("machineId"))
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondOK(c, session)
}

func (h *CollectionHandler) Finalize(c *gin.Context) {
	sessionID, ok := parseID(c, "id", "session")
	if !ok {
		return
	}

	result, err := h.collections.Finalize(c.Request.Context(), sessionID, middleware.GetActor(c), middleware.GetCorrelationID(c))
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondOK(c, result)
}
