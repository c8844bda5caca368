package service

import (
	"context"
	"log/slog"

	"github.com/gaming-vault-ledger/internal/domain/audit"
	"github.com/gaming-vault-ledger/internal/domain/vault"
	"github.com/google/uuid"
)

// VaultReader is the part of the ledger the history service needs
type VaultReader interface {
	GetVaultBalance(ctx context.Context, vaultID uuid.UUID) (vault.Snapshot, error)
	ListAuditRecords(ctx context.Context, vaultID uuid.UUID, limit, offset int) ([]*audit.Record, error)
}

// AuditHistoryServiceImpl reads from the MongoDB projection and falls back to the
// authoritative store when the projection is unavailable
type AuditHistoryServiceImpl struct {
	projection audit.ProjectionRepository
	vaults     VaultReader
	logger     *slog.Logger
}

func NewAuditHistoryService(logger *slog.Logger, projection audit.ProjectionRepository, vaults VaultReader) AuditHistoryService {
	return &AuditHistoryServiceImpl{
		projection: projection,
		vaults:     vaults,
		logger:     logger,
	}
}

func (s *AuditHistoryServiceImpl) GetVaultAudit(ctx context.Context, vaultID uuid.UUID, page, perPage int) ([]*audit.Record, int64, error) {
	offset := (page - 1) * perPage

	snapshot, err := s.vaults.GetVaultBalance(ctx, vaultID)
	if err != nil {
		return nil, 0, err
	}

	records, err := s.projection.GetByVaultID(ctx, vaultID, perPage, offset)
	if err == nil {
		var total int64
		total, err = s.projection.CountByVaultID(ctx, vaultID)
		if err == nil {
			return records, total, nil
		}
	}

	s.logger.Warn("Audit projection unavailable, reading authoritative store",
		"vault_id", vaultID.String(),
		"error", err,
	)
	records, err = s.vaults.ListAuditRecords(ctx, vaultID, perPage, offset)
	if err != nil {
		s.logger.Error("Failed to list audit records", "vault_id", vaultID.String(), "error", err)
		return nil, 0, err
	}
	return records, snapshot.AuditSequence, nil
}
