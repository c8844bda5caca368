// Package postgres provides PostgreSQL implementations of the domain repositories.
// It is the authoritative store of the vault ledger: inventories, the append-only
// reconciliation trail, shifts, collection sessions and the outbox.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/gaming-vault-ledger/internal/domain/vault"
	"github.com/gaming-vault-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const inventoryColumns = `vault_id, location_id, denominations, balance, audit_sequence, version, last_reconciled_at, created_at, updated_at`

// VaultRepository implements the vault.Repository interface for PostgreSQL
type VaultRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewVaultRepository creates a new PostgreSQL vault repository
func NewVaultRepository(logger *slog.Logger, db *persistence.PostgresDB) vault.Repository {
	return &VaultRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *VaultRepository) WithTx(tx pgx.Tx) vault.Repository {
	return &VaultRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create provisions a vault. A second vault for the same location is rejected.
func (r *VaultRepository) Create(ctx context.Context, inv *vault.Inventory) error {
	denominations, err := json.Marshal(inv.Denominations)
	if err != nil {
		return fmt.Errorf("failed to encode denominations: %w", err)
	}

	query := `
		INSERT INTO vault_inventories (vault_id, location_id, denominations, balance, audit_sequence, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.querier.Exec(ctx, query,
		inv.VaultID,
		inv.LocationID,
		denominations,
		inv.Balance,
		inv.AuditSequence,
		inv.Version,
		inv.CreatedAt,
		inv.UpdatedAt,
	)
	if err != nil {
		if persistence.IsUniqueViolation(err, "vault_inventories_location_id_key") {
			return vault.ErrDuplicateLocation{LocationID: inv.LocationID}
		}
		r.logger.Error("Failed to create vault", "location_id", inv.LocationID, "error", err)
		return fmt.Errorf("failed to create vault: %w", err)
	}

	return nil
}

// GetByID reads a vault without locking it
func (r *VaultRepository) GetByID(ctx context.Context, id uuid.UUID) (*vault.Inventory, error) {
	query := `SELECT ` + inventoryColumns + ` FROM vault_inventories WHERE vault_id = $1`

	inv, err := scanInventory(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, vault.ErrVaultNotFound{VaultID: id}
		}
		r.logger.Error("Failed to get vault", "vault_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get vault: %w", err)
	}
	return inv, nil
}

// GetByLocationID reads the vault provisioned for a location
func (r *VaultRepository) GetByLocationID(ctx context.Context, locationID string) (*vault.Inventory, error) {
	query := `SELECT ` + inventoryColumns + ` FROM vault_inventories WHERE location_id = $1`

	inv, err := scanInventory(r.querier.QueryRow(ctx, query, locationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, vault.ErrVaultNotFound{LocationID: locationID}
		}
		r.logger.Error("Failed to get vault by location", "location_id", locationID, "error", err)
		return nil, fmt.Errorf("failed to get vault by location: %w", err)
	}
	return inv, nil
}

// Update writes the new denomination set, balance and sequence, bumping the version.
// Returns ErrConcurrentModification if the stored version moved since it was read.
func (r *VaultRepository) Update(ctx context.Context, inv *vault.Inventory, expectedVersion int) error {
	denominations, err := json.Marshal(inv.Denominations)
	if err != nil {
		return fmt.Errorf("failed to encode denominations: %w", err)
	}

	query := `
		UPDATE vault_inventories
		SET denominations = $1, balance = $2, audit_sequence = $3, version = $4, last_reconciled_at = $5, updated_at = $6
		WHERE vault_id = $7 AND version = $8
	`

	result, err := r.querier.Exec(ctx, query,
		denominations,
		inv.Balance,
		inv.AuditSequence,
		expectedVersion+1,
		inv.LastReconciledAt,
		inv.UpdatedAt,
		inv.VaultID,
		expectedVersion,
	)
	if err != nil {
		if persistence.IsLockTimeout(err) {
			return vault.ErrConcurrentModification{VaultID: inv.VaultID}
		}
		r.logger.Error("Failed to update vault", "vault_id", inv.VaultID.String(), "error", err)
		return fmt.Errorf("failed to update vault: %w", err)
	}

	if result.RowsAffected() == 0 {
		return vault.ErrConcurrentModification{VaultID: inv.VaultID}
	}

	inv.Version = expectedVersion + 1
	return nil
}

// LockForUpdate row-locks the vault for the surrounding transaction and returns its current state
func (r *VaultRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*vault.Inventory, error) {
	query := `SELECT ` + inventoryColumns + ` FROM vault_inventories WHERE vault_id = $1 FOR UPDATE`

	inv, err := scanInventory(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, vault.ErrVaultNotFound{VaultID: id}
		}
		if persistence.IsLockTimeout(err) {
			return nil, vault.ErrConcurrentModification{VaultID: id}
		}
		r.logger.Error("Failed to lock vault for update", "vault_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock vault for update: %w", err)
	}
	return inv, nil
}

func scanInventory(row pgx.Row) (*vault.Inventory, error) {
	var inv vault.Inventory
	var denominations []byte
	err := row.Scan(
		&inv.VaultID,
		&inv.LocationID,
		&denominations,
		&inv.Balance,
		&inv.AuditSequence,
		&inv.Version,
		&inv.LastReconciledAt,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.Denominations = denomination.Set{}
	if len(denominations) > 0 {
		if err := json.Unmarshal(denominations, &inv.Denominations); err != nil {
			return nil, fmt.Errorf("failed to decode denominations: %w", err)
		}
	}
	return &inv, nil
}
