package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gaming-vault-ledger/internal/domain/audit"
	"github.com/gaming-vault-ledger/internal/domain/collection"
	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/gaming-vault-ledger/internal/domain/shift"
	"github.com/gaming-vault-ledger/internal/domain/vault"
	"github.com/gaming-vault-ledger/internal/engine"
	"github.com/gaming-vault-ledger/internal/vault_api/middleware"
	"github.com/gin-gonic/gin"
)

// Response is the envelope of every API reply
type Response struct {
	Data          any        `json:"data,omitempty"`
	Error         *ErrorInfo `json:"error,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	Meta          *MetaInfo  `json:"meta,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type MetaInfo struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
	TotalItems int `json:"total_items,omitempty"`
}

// NewPaginatedResponse derives the page count from the total
func NewPaginatedResponse(data any, page, perPage, totalItems int) *Response {
	totalPages := totalItems / perPage
	if totalItems%perPage > 0 {
		totalPages++
	}

	return &Response{
		Data: data,
		Meta: &MetaInfo{
			Page:       page,
			PerPage:    perPage,
			TotalPages: totalPages,
			TotalItems: totalItems,
		},
	}
}

func RespondWithData(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, &Response{Data: data, CorrelationID: middleware.GetCorrelationID(c)})
}

func RespondWithError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, &Response{
		Error:         &ErrorInfo{Code: code, Message: message},
		CorrelationID: middleware.GetCorrelationID(c),
	})
}

func RespondWithPaginatedData(c *gin.Context, statusCode int, data any, page, perPage, totalItems int) {
	response := NewPaginatedResponse(data, page, perPage, totalItems)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

func RespondOK(c *gin.Context, data any) {
	RespondWithData(c, http.StatusOK, data)
}

func RespondCreated(c *gin.Context, data any) {
	RespondWithData(c, http.StatusCreated, data)
}

func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

func RespondInternalError(c *gin.Context) {
	RespondWithError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An internal server error occurred")
}

type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings is checked in order; the first match wins
var errorMappings = []errorMapping{
	{vault.ErrVaultNotFound{}, http.StatusNotFound, "VAULT_NOT_FOUND"},
	{shift.ErrShiftNotFound{}, http.StatusNotFound, "SHIFT_NOT_FOUND"},
	{collection.ErrSessionNotFound{}, http.StatusNotFound, "SESSION_NOT_FOUND"},
	{collection.ErrEntryNotFound{}, http.StatusNotFound, "ENTRY_NOT_FOUND"},

	{vault.ErrConcurrentModification{}, http.StatusConflict, "CONCURRENT_MODIFICATION"},
	{shift.ErrActiveShiftExists{}, http.StatusConflict, "ACTIVE_SHIFT_EXISTS"},
	{shift.ErrInvalidTransition{}, http.StatusConflict, "INVALID_TRANSITION"},
	{collection.ErrDuplicateMachine{}, http.StatusConflict, "DUPLICATE_MACHINE"},
	{collection.ErrAlreadyFinalized{}, http.StatusConflict, "ALREADY_FINALIZED"},

	{denomination.ErrInsufficientStock{}, http.StatusUnprocessableEntity, "INSUFFICIENT_STOCK"},
	{denomination.ErrUnconfirmedCount, http.StatusUnprocessableEntity, "UNCONFIRMED_COUNT"},
	{audit.ErrInvalidComment{}, http.StatusUnprocessableEntity, "INVALID_COMMENT"},
	{shift.ErrBalanceMismatch{}, http.StatusUnprocessableEntity, "BALANCE_MISMATCH"},
	{shift.ErrOverrideRequiresBreakdown, http.StatusUnprocessableEntity, "OVERRIDE_REQUIRES_BREAKDOWN"},
	{collection.ErrEmptySession{}, http.StatusUnprocessableEntity, "EMPTY_SESSION"},
	{shift.ErrNegativeExpectedBalance, http.StatusUnprocessableEntity, "NEGATIVE_EXPECTED_BALANCE"},
	{denomination.ErrAmountOverflow, http.StatusUnprocessableEntity, "AMOUNT_OVERFLOW"},

	{denomination.ErrInvalidDenomination, http.StatusBadRequest, "INVALID_DENOMINATION"},
	{denomination.ErrDuplicateFaceValue, http.StatusBadRequest, "INVALID_DENOMINATION"},
	{denomination.ErrEmptySet, http.StatusBadRequest, "INVALID_DENOMINATION"},
	{denomination.ErrInvalidCount, http.StatusBadRequest, "INVALID_COUNT"},
	{collection.ErrEntryTotalMismatch, http.StatusBadRequest, "ENTRY_TOTAL_MISMATCH"},
	{engine.ErrMissingActor, http.StatusBadRequest, "MISSING_ACTOR"},
}

// RespondDomainError maps an engine error to its status and stable code. Anything unrecognised is
// logged and reported as a 500 without leaking its text.
func RespondDomainError(c *gin.Context, logger *slog.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			RespondWithError(c, m.status, m.code, err.Error())
			return
		}
	}

	var duplicate vault.ErrDuplicateLocation
	if errors.As(err, &duplicate) {
		RespondWithError(c, http.StatusConflict, "DUPLICATE_LOCATION", err.Error())
		return
	}

	if engine.IsRejection(err) {
		RespondBadRequest(c, err.Error())
		return
	}

	logger.Error("Unhandled error", "error", err, "correlation_id", middleware.GetCorrelationID(c))
	RespondInternalError(c)
}
