package service

import (
	"context"

	"github.com/gaming-vault-ledger/internal/domain/audit"
	"github.com/gaming-vault-ledger/internal/domain/shared"
	"github.com/gaming-vault-ledger/internal/engine"
)

// ProcessingService commits one machine cash drop to its vault
type ProcessingService interface {
	ProcessCashDrop(ctx context.Context, request *shared.CashDropRequest) error
}

// CashArrivalRecorder is the part of the ledger the worker writes through
type CashArrivalRecorder interface {
	AddCashArrival(ctx context.Context, req engine.CashArrivalRequest) (*audit.Record, bool, error)
}
