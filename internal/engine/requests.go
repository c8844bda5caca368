package engine

import (
	"time"

	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/gaming-vault-ledger/internal/domain/shared"
	"github.com/gaming-vault-ledger/internal/domain/shift"
	"github.com/google/uuid"
)

// AdjustRequest applies a signed denomination change to a vault
type AdjustRequest struct {
	VaultID       uuid.UUID
	Delta         denomination.Delta
	Actor         string
	Comment       string
	Reference     string
	CorrelationID string
}

// ReconcileRequest replaces a vault's inventory with a physical count
type ReconcileRequest struct {
	VaultID       uuid.UUID
	Denominations denomination.Set
	Reason        string
	Comment       string
	Actor         string
	CorrelationID string
}

// CashArrivalRequest adds external cash to a vault. A repeated IdempotencyKey returns the first record.
type CashArrivalRequest struct {
	VaultID        uuid.UUID
	Source         shared.ArrivalSource
	Denominations  denomination.Set
	Notes          string
	Actor          string
	IdempotencyKey string
	CorrelationID  string
}

// OpenShiftRequest issues a float to a cashier
type OpenShiftRequest struct {
	CashierID   string
	CashierName string
	LocationID  string
	Float       int64
}

// ForceCloseRequest closes a cashier's active shift on their behalf
type ForceCloseRequest struct {
	CashierID     string
	LocationID    string
	Count         denomination.CashCount
	Tag           shift.ReasonTag
	Notes         string
	Actor         string
	CorrelationID string
}

// ResolveRequest completes manager review. A nil Denominations confirms the cashier's count as entered.
type ResolveRequest struct {
	ShiftID       uuid.UUID
	FinalBalance  int64
	Comment       string
	Denominations denomination.Set
	Actor         string
	CorrelationID string
}

// RejectRequest sends a shift back for recount
type RejectRequest struct {
	ShiftID       uuid.UUID
	Reason        string
	Actor         string
	CorrelationID string
}

// EntryRequest is one machine's collected cash
type EntryRequest struct {
	MachineID     string
	MachineName   string
	Denominations denomination.Set
	TotalAmount   *int64
	CollectedAt   time.Time
}
