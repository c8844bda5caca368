package handler

import (
	"log/slog"

	"github.com/gaming-vault-ledger/internal/domain/shift"
	"github.com/gaming-vault-ledger/internal/engine"
	"github.com/gaming-vault-ledger/internal/vault_api/middleware"
	"github.com/gin-gonic/gin"
)

// ShiftHandler serves the cashier shift lifecycle
type ShiftHandler struct {
	shifts engine.ShiftReconciler
	logger *slog.Logger
}

func NewShiftHandler(logger *slog.Logger, shifts engine.ShiftReconciler) *ShiftHandler {
	return &ShiftHandler{
		shifts: shifts,
		logger: logger,
	}
}

func (h *ShiftHandler) Open(c *gin.Context) {
	var req OpenShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	opened, err := h.shifts.OpenShift(c.Request.Context(), engine.OpenShiftRequest{
		CashierID:   req.CashierID,
		CashierName: req.CashierName,
		LocationID:  req.LocationID,
		Float:       req.Float,
	})
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondCreated(c, opened)
}

func (h *ShiftHandler) Get(c *gin.Context) {
	shiftID, ok := parseID(c, "id", "shift")
	if !ok {
		return
	}

	found, err := h.shifts.GetShift(c.Request.Context(), shiftID)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondOK(c, found)
}

func (h *ShiftHandler) RecordTransaction(c *gin.Context) {
	shiftID, ok := parseID(c, "id", "shift")
	if !ok {
		return
	}

	var req ShiftTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	updated, err := h.shifts.RecordShiftTransaction(c.Request.Context(), shiftID, req.Amount)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondOK(c, updated)
}

// Close returns the review summary. A balanced close still goes to manager review.
func (h *ShiftHandler) Close(c *gin.Context) {
	shiftID, ok := parseID(c, "id", "shift")
	if !ok {
		return
	}

	var req CloseShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	count, err := req.Count.toCashCount()
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	info, err := h.shifts.CloseShift(c.Request.Context(), shiftID, count, middleware.GetActor(c))
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondOK(c, info)
}

func (h *ShiftHandler) ForceClose(c *gin.Context) {
	var req ForceCloseShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	count, err := req.Count.toCashCount()
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	info, err := h.shifts.ForceCloseShift(c.Request.Context(), engine.ForceCloseRequest{
		CashierID:     req.CashierID,
		LocationID:    req.LocationID,
		Count:         count,
		Tag:           shift.ReasonTag(req.Tag),
		Notes:         req.Notes,
		Actor:         middleware.GetActor(c),
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondOK(c, info)
}

func (h *ShiftHandler) Resolve(c *gin.Context) {
	shiftID, ok := parseID(c, "id", "shift")
	if !ok {
		return
	}

	var req ResolveShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	override, err := optionalSet(req.Denominations)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	record, err := h.shifts.ResolveShift(c.Request.Context(), engine.ResolveRequest{
		ShiftID:       shiftID,
		FinalBalance:  req.FinalBalance,
		Comment:       req.Comment,
		Denominations: override,
		Actor:         middleware.GetActor(c),
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondOK(c, mapRecordToResponse(record))
}

func (h *ShiftHandler) Reject(c *gin.Context) {
	shiftID, ok := parseID(c, "id", "shift")
	if !ok {
		return
	}

	var req RejectShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	rejected, err := h.shifts.RejectShift(c.Request.Context(), engine.RejectRequest{
		ShiftID:       shiftID,
		Reason:        req.Reason,
		Actor:         middleware.GetActor(c),
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}
	RespondOK(c, rejected)
}
