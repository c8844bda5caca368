package service

import (
	"context"

	"github.com/gaming-vault-ledger/internal/domain/audit"
	"github.com/google/uuid"
)

// AuditHistoryService serves paginated reconciliation history
type AuditHistoryService interface {
	// GetVaultAudit returns one page of records, newest first, and the total record count.
	// Returns vault.ErrVaultNotFound for an unknown vault.
	GetVaultAudit(ctx context.Context, vaultID uuid.UUID, page, perPage int) ([]*audit.Record, int64, error)
}
