package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/gaming-vault-ledger/internal/domain/shared"
	"github.com/gaming-vault-ledger/internal/domain/vault"
	"github.com/gaming-vault-ledger/internal/engine"
)

// CashDropService records machine drops as MACHINE_DROP cash arrivals keyed by request id
type CashDropService struct {
	ledger CashArrivalRecorder
	logger *slog.Logger
}

var _ ProcessingService = (*CashDropService)(nil)

func NewCashDropService(ledger CashArrivalRecorder, logger *slog.Logger) *CashDropService {
	return &CashDropService{
		ledger: ledger,
		logger: logger,
	}
}

// ProcessCashDrop is safe to repeat: a redelivered request id returns the original record
func (s *CashDropService) ProcessCashDrop(ctx context.Context, request *shared.CashDropRequest) error {
	logger := s.logger
	if request.CorrelationID != "" {
		logger = s.logger.With("correlation_id", request.CorrelationID)
	}

	set, err := request.Validate()
	if err != nil {
		logger.Warn("Cash drop failed validation", "request_id", request.RequestID.String(), "error", err)
		return err
	}

	actor := request.Actor
	if actor == "" {
		actor = "machine:" + request.MachineID
	}

	record, created, err := s.ledger.AddCashArrival(ctx, engine.CashArrivalRequest{
		VaultID:        request.VaultID,
		Source:         shared.ArrivalSourceMachineDrop,
		Denominations:  set,
		Notes:          request.Notes,
		Actor:          actor,
		IdempotencyKey: request.RequestID.String(),
		CorrelationID:  request.CorrelationID,
	})
	if err != nil {
		return err
	}

	if !created {
		logger.Info("Cash drop already applied", "request_id", request.RequestID.String(), "record_id", record.ID.String())
		return nil
	}
	logger.Info("Cash drop applied",
		"request_id", request.RequestID.String(),
		"vault_id", request.VaultID.String(),
		"machine_id", request.MachineID,
		"record_id", record.ID.String(),
		"new_balance", record.NewBalance,
	)
	return nil
}

// Classify reports whether err can never succeed on retry and which DLQ reason describes it
func Classify(err error) (shared.FailureReason, bool) {
	switch {
	case errors.Is(err, ErrProcessingPanic):
		return shared.FailureReasonProcessingPanic, true
	case errors.Is(err, vault.ErrVaultNotFound{}):
		return shared.FailureReasonVaultNotFound, true
	case errors.Is(err, denomination.ErrInvalidDenomination),
		errors.Is(err, denomination.ErrDuplicateFaceValue),
		errors.Is(err, denomination.ErrEmptySet):
		return shared.FailureReasonInvalidDenomination, true
	case errors.Is(err, shared.ErrMissingRequestID),
		errors.Is(err, shared.ErrMissingVaultID),
		errors.Is(err, shared.ErrMissingMachineID),
		engine.IsRejection(err):
		return shared.FailureReasonInvalidRequest, true
	}
	return shared.FailureReasonUnknownError, false
}
