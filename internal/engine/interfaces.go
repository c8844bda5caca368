package engine

import (
	"context"

	"github.com/gaming-vault-ledger/internal/domain/audit"
	"github.com/gaming-vault-ledger/internal/domain/collection"
	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/gaming-vault-ledger/internal/domain/shift"
	"github.com/gaming-vault-ledger/internal/domain/vault"
	"github.com/google/uuid"
)

// VaultLedger defines the vault inventory operations
type VaultLedger interface {
	ProvisionVault(ctx context.Context, locationID string) (*vault.Inventory, error)
	GetVaultBalance(ctx context.Context, vaultID uuid.UUID) (vault.Snapshot, error)
	ListAuditRecords(ctx context.Context, vaultID uuid.UUID, limit, offset int) ([]*audit.Record, error)
	AdjustVault(ctx context.Context, req AdjustRequest) (*audit.Record, error)
	ReconcileVault(ctx context.Context, req ReconcileRequest) (*audit.Record, error)
	AddCashArrival(ctx context.Context, req CashArrivalRequest) (*audit.Record, bool, error)
}

// ShiftReconciler defines the cashier shift lifecycle
type ShiftReconciler interface {
	OpenShift(ctx context.Context, req OpenShiftRequest) (*shift.CashierShift, error)
	GetShift(ctx context.Context, shiftID uuid.UUID) (*shift.CashierShift, error)
	RecordShiftTransaction(ctx context.Context, shiftID uuid.UUID, amount int64) (*shift.CashierShift, error)
	CloseShift(ctx context.Context, shiftID uuid.UUID, count denomination.CashCount, actor string) (shift.UnbalancedShiftInfo, error)
	ForceCloseShift(ctx context.Context, req ForceCloseRequest) (shift.UnbalancedShiftInfo, error)
	ResolveShift(ctx context.Context, req ResolveRequest) (*audit.Record, error)
	RejectShift(ctx context.Context, req RejectRequest) (*shift.CashierShift, error)
}

// CollectionAggregator defines the soft-count collection session operations
type CollectionAggregator interface {
	StartOrGetSession(ctx context.Context, locationID, vaultShiftID string) (*collection.Session, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (*collection.Session, error)
	AddEntry(ctx context.Context, sessionID uuid.UUID, req EntryRequest) (*collection.Session, error)
	RemoveEntry(ctx context.Context, sessionID uuid.UUID, machineID string) (*collection.Session, error)
	Finalize(ctx context.Context, sessionID uuid.UUID, actor, correlationID string) (collection.FinalizeResult, error)
}
