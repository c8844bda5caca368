package handler

import (
	"log/slog"
	"net/http"

	"github.com/gaming-vault-ledger/internal/domain/audit"
	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/gaming-vault-ledger/internal/domain/shared"
	"github.com/gaming-vault-ledger/internal/engine"
	"github.com/gaming-vault-ledger/internal/vault_api/middleware"
	"github.com/gaming-vault-ledger/internal/vault_api/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IdempotencyKeyHeader may carry the cash arrival key instead of the body
const IdempotencyKeyHeader = "Idempotency-Key"

// VaultHandler serves vault inventory, adjustments, reconciliations, cash arrivals and history
type VaultHandler struct {
	ledger  engine.VaultLedger
	history service.AuditHistoryService
	logger  *slog.Logger
}

func NewVaultHandler(logger *slog.Logger, ledger engine.VaultLedger, history service.AuditHistoryService) *VaultHandler {
	return &VaultHandler{
		ledger:  ledger,
		history: history,
		logger:  logger,
	}
}

func (h *VaultHandler) Provision(c *gin.Context) {
	var req ProvisionVaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	inv, err := h.ledger.ProvisionVault(c.Request.Context(), req.LocationID)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondCreated(c, inv.Snapshot())
}

func (h *VaultHandler) GetBalance(c *gin.Context) {
	vaultID, ok := h.vaultID(c)
	if !ok {
		return
	}

	snapshot, err := h.ledger.GetVaultBalance(c.Request.Context(), vaultID)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondOK(c, snapshot)
}

func (h *VaultHandler) Adjust(c *gin.Context) {
	vaultID, ok := h.vaultID(c)
	if !ok {
		return
	}

	var req AdjustVaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	delta, err := toDelta(req.Delta)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	record, err := h.ledger.AdjustVault(c.Request.Context(), engine.AdjustRequest{
		VaultID:       vaultID,
		Delta:         delta,
		Actor:         middleware.GetActor(c),
		Comment:       req.Comment,
		Reference:     req.Reference,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondCreated(c, mapRecordToResponse(record))
}

func (h *VaultHandler) Reconcile(c *gin.Context) {
	vaultID, ok := h.vaultID(c)
	if !ok {
		return
	}

	var req ReconcileVaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	set, err := denomination.FromEntries(req.Denominations)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	record, err := h.ledger.ReconcileVault(c.Request.Context(), engine.ReconcileRequest{
		VaultID:       vaultID,
		Denominations: set,
		Reason:        req.Reason,
		Comment:       req.Comment,
		Actor:         middleware.GetActor(c),
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondCreated(c, mapRecordToResponse(record))
}

// AddCashArrival answers 201 for a new arrival and 200 with the original record for a replay
func (h *VaultHandler) AddCashArrival(c *gin.Context) {
	vaultID, ok := h.vaultID(c)
	if !ok {
		return
	}

	var req CashArrivalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	set, err := denomination.FromEntries(req.Denominations)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	key := req.IdempotencyKey
	if key == "" {
		key = c.GetHeader(IdempotencyKeyHeader)
	}

	record, created, err := h.ledger.AddCashArrival(c.Request.Context(), engine.CashArrivalRequest{
		VaultID:        vaultID,
		Source:         shared.ArrivalSource(req.Source),
		Denominations:  set,
		Notes:          req.Notes,
		Actor:          middleware.GetActor(c),
		IdempotencyKey: key,
		CorrelationID:  middleware.GetCorrelationID(c),
	})
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	if !created {
		RespondOK(c, mapRecordToResponse(record))
		return
	}
	RespondCreated(c, mapRecordToResponse(record))
}

func (h *VaultHandler) GetAuditHistory(c *gin.Context) {
	vaultID, ok := h.vaultID(c)
	if !ok {
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	records, total, err := h.history.GetVaultAudit(c.Request.Context(), vaultID, pagination.Page, pagination.PerPage)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondWithPaginatedData(c, http.StatusOK, mapRecords(records), pagination.Page, pagination.PerPage, int(total))
}

func (h *VaultHandler) vaultID(c *gin.Context) (uuid.UUID, bool) {
	return parseID(c, "id", "vault")
}

func mapRecords(records []*audit.Record) []AuditRecordResponse {
	out := make([]AuditRecordResponse, 0, len(records))
	for _, record := range records {
		out = append(out, mapRecordToResponse(record))
	}
	return out
}

// parseID writes a 400 and reports false when the path parameter is not a UUID
func parseID(c *gin.Context, param, resource string) (uuid.UUID, bool) {
	raw := c.Param(param)
	id, err := uuid.Parse(raw)
	if err != nil {
		RespondBadRequest(c, "Invalid "+resource+" ID")
		return uuid.Nil, false
	}
	return id, true
}
