package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gaming-vault-ledger/internal/domain/collection"
	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/gaming-vault-ledger/internal/domain/vault"
	"github.com/gaming-vault-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, location_id, vault_shift_id, status, record_id, finalized_by, finalized_at, version, created_at, updated_at`

// CollectionRepository implements the collection.Repository interface for PostgreSQL.
// Entries live in their own table keyed by (session_id, machine_id).
type CollectionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewCollectionRepository creates a new PostgreSQL collection repository
func NewCollectionRepository(logger *slog.Logger, db *persistence.PostgresDB) collection.Repository {
	return &CollectionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *CollectionRepository) WithTx(tx pgx.Tx) collection.Repository {
	return &CollectionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create opens a session. Entries are written separately through AddEntry.
// A second open session for the same key gets ErrOpenSessionExists.
func (r *CollectionRepository) Create(ctx context.Context, s *collection.Session) error {
	query := `
		INSERT INTO collection_sessions (id, location_id, vault_shift_id, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.querier.Exec(ctx, query, s.ID, s.LocationID, s.VaultShiftID, s.Status, s.Version, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if persistence.IsUniqueViolation(err, "collection_sessions_open_key") {
			return collection.ErrOpenSessionExists{LocationID: s.LocationID, VaultShiftID: s.VaultShiftID}
		}
		r.logger.Error("Failed to create collection session",
			"location_id", s.LocationID,
			"vault_shift_id", s.VaultShiftID,
			"error", err,
		)
		return fmt.Errorf("failed to create collection session: %w", err)
	}
	return nil
}

// GetByID loads a session with its entries
func (r *CollectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*collection.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM collection_sessions WHERE id = $1`
	return r.load(ctx, query, id)
}

// GetOpenByKey finds the open session for a (location, vault shift) key
func (r *CollectionRepository) GetOpenByKey(ctx context.Context, locationID, vaultShiftID string) (*collection.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM collection_sessions WHERE location_id = $1 AND vault_shift_id = $2 AND status = $3`
	return r.load(ctx, query, locationID, vaultShiftID, collection.StatusOpen)
}

// LockForUpdate row-locks the session for the surrounding transaction and loads its entries
func (r *CollectionRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*collection.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM collection_sessions WHERE id = $1 FOR UPDATE`
	s, err := r.load(ctx, query, id)
	if err != nil && persistence.IsLockTimeout(err) {
		return nil, vault.ErrConcurrentModification{Key: "collection:" + id.String()}
	}
	return s, err
}

func (r *CollectionRepository) load(ctx context.Context, query string, args ...any) (*collection.Session, error) {
	var s collection.Session
	var finalizedBy *string
	err := r.querier.QueryRow(ctx, query, args...).Scan(
		&s.ID,
		&s.LocationID,
		&s.VaultShiftID,
		&s.Status,
		&s.RecordID,
		&finalizedBy,
		&s.FinalizedAt,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var id uuid.UUID
			if len(args) == 1 {
				id, _ = args[0].(uuid.UUID)
			}
			return nil, collection.ErrSessionNotFound{SessionID: id}
		}
		if persistence.IsLockTimeout(err) {
			return nil, err
		}
		r.logger.Error("Failed to get collection session", "error", err)
		return nil, fmt.Errorf("failed to get collection session: %w", err)
	}
	s.FinalizedBy = deref(finalizedBy)

	entries, err := r.entries(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	s.Entries = entries
	return &s, nil
}

func (r *CollectionRepository) entries(ctx context.Context, sessionID uuid.UUID) ([]collection.Entry, error) {
	query := `
		SELECT machine_id, machine_name, denominations, total_amount, collected_at
		FROM collection_entries
		WHERE session_id = $1
		ORDER BY collected_at ASC, machine_id ASC
	`

	rows, err := r.querier.Query(ctx, query, sessionID)
	if err != nil {
		r.logger.Error("Failed to list collection entries", "session_id", sessionID.String(), "error", err)
		return nil, fmt.Errorf("failed to list collection entries: %w", err)
	}
	defer rows.Close()

	entries := []collection.Entry{}
	for rows.Next() {
		var e collection.Entry
		var raw []byte
		if err := rows.Scan(&e.MachineID, &e.MachineName, &raw, &e.TotalAmount, &e.CollectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan collection entry: %w", err)
		}
		e.Denominations = denomination.Set{}
		if err := json.Unmarshal(raw, &e.Denominations); err != nil {
			return nil, fmt.Errorf("failed to decode entry denominations: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over collection entries: %w", err)
	}
	return entries, nil
}

// AddEntry stores a machine count. A machine already in the session gets ErrDuplicateMachine.
func (r *CollectionRepository) AddEntry(ctx context.Context, sessionID uuid.UUID, entry collection.Entry) error {
	denominations, err := json.Marshal(entry.Denominations)
	if err != nil {
		return fmt.Errorf("failed to encode entry denominations: %w", err)
	}

	query := `
		INSERT INTO collection_entries (session_id, machine_id, machine_name, denominations, total_amount, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.querier.Exec(ctx, query, sessionID, entry.MachineID, entry.MachineName, denominations, entry.TotalAmount, entry.CollectedAt)
	if err != nil {
		if persistence.IsUniqueViolation(err, "collection_entries_pkey") {
			return collection.ErrDuplicateMachine{SessionID: sessionID, MachineID: entry.MachineID}
		}
		r.logger.Error("Failed to add collection entry",
			"session_id", sessionID.String(),
			"machine_id", entry.MachineID,
			"error", err,
		)
		return fmt.Errorf("failed to add collection entry: %w", err)
	}
	return nil
}

// RemoveEntry deletes a machine count
func (r *CollectionRepository) RemoveEntry(ctx context.Context, sessionID uuid.UUID, machineID string) error {
	query := `DELETE FROM collection_entries WHERE session_id = $1 AND machine_id = $2`

	result, err := r.querier.Exec(ctx, query, sessionID, machineID)
	if err != nil {
		r.logger.Error("Failed to remove collection entry",
			"session_id", sessionID.String(),
			"machine_id", machineID,
			"error", err,
		)
		return fmt.Errorf("failed to remove collection entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return collection.ErrEntryNotFound{SessionID: sessionID, MachineID: machineID}
	}
	return nil
}

// Update persists the session status fields if the stored version still equals expectedVersion
func (r *CollectionRepository) Update(ctx context.Context, s *collection.Session, expectedVersion int) error {
	query := `
		UPDATE collection_sessions
		SET status = $1, record_id = $2, finalized_by = $3, finalized_at = $4, version = $5, updated_at = $6
		WHERE id = $7 AND version = $8
	`

	result, err := r.querier.Exec(ctx, query,
		s.Status,
		s.RecordID,
		nullString(s.FinalizedBy),
		s.FinalizedAt,
		expectedVersion+1,
		s.UpdatedAt,
		s.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update collection session", "session_id", s.ID.String(), "error", err)
		return fmt.Errorf("failed to update collection session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return vault.ErrConcurrentModification{Key: "collection:" + s.ID.String()}
	}

	s.Version = expectedVersion + 1
	return nil
}
