package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gaming-vault-ledger/internal/domain/audit"
	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/gaming-vault-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const recordColumns = `id, vault_id, sequence, kind, actor, recorded_at, previous_balance, new_balance, variance, discrepancy,
	denomination_delta, reason, comment, reference, idempotency_key, correlation_id`

// AuditRepository implements the append-only audit.Repository for PostgreSQL.
// Rows are never updated or deleted; a trigger on the table rejects both.
type AuditRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewAuditRepository creates a new PostgreSQL audit repository
func NewAuditRepository(logger *slog.Logger, db *persistence.PostgresDB) audit.Repository {
	return &AuditRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *AuditRepository) WithTx(tx pgx.Tx) audit.Repository {
	return &AuditRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Append writes a record. Sequence and idempotency key collisions surface as ErrDuplicateRecord.
func (r *AuditRepository) Append(ctx context.Context, record *audit.Record) error {
	delta, err := json.Marshal(record.DenominationDelta)
	if err != nil {
		return fmt.Errorf("failed to encode denomination delta: %w", err)
	}

	query := `
		INSERT INTO reconciliation_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.querier.Exec(ctx, query,
		record.ID,
		record.VaultID,
		record.Sequence,
		record.Kind,
		record.Actor,
		record.Timestamp,
		record.PreviousBalance,
		record.NewBalance,
		record.Variance,
		record.Discrepancy,
		delta,
		nullString(record.Reason),
		nullString(record.Comment),
		nullString(record.Reference),
		nullString(record.IdempotencyKey),
		nullString(record.CorrelationID),
	)
	if err != nil {
		switch {
		case persistence.IsUniqueViolation(err, "reconciliation_records_vault_sequence_key"):
			return audit.ErrDuplicateRecord{VaultID: record.VaultID, Field: "sequence"}
		case persistence.IsUniqueViolation(err, "reconciliation_records_vault_idempotency_key"):
			return audit.ErrDuplicateRecord{VaultID: record.VaultID, Field: "idempotency_key"}
		}
		r.logger.Error("Failed to append reconciliation record",
			"record_id", record.ID.String(),
			"vault_id", record.VaultID.String(),
			"kind", string(record.Kind),
			"error", err,
		)
		return fmt.Errorf("failed to append reconciliation record: %w", err)
	}

	return nil
}

// GetByID reads one record
func (r *AuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*audit.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM reconciliation_records WHERE id = $1`

	record, err := scanRecord(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, audit.ErrRecordNotFound{RecordID: id}
		}
		r.logger.Error("Failed to get reconciliation record", "record_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get reconciliation record: %w", err)
	}
	return record, nil
}

// GetByIdempotencyKey finds the record a previous request with the same key produced
func (r *AuditRepository) GetByIdempotencyKey(ctx context.Context, vaultID uuid.UUID, key string) (*audit.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM reconciliation_records WHERE vault_id = $1 AND idempotency_key = $2`

	record, err := scanRecord(r.querier.QueryRow(ctx, query, vaultID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, audit.ErrRecordNotFound{}
		}
		r.logger.Error("Failed to get reconciliation record by idempotency key",
			"vault_id", vaultID.String(),
			"idempotency_key", key,
			"error", err,
		)
		return nil, fmt.Errorf("failed to get reconciliation record by idempotency key: %w", err)
	}
	return record, nil
}

// ListByVaultID pages through a vault's trail, newest first
func (r *AuditRepository) ListByVaultID(ctx context.Context, vaultID uuid.UUID, limit, offset int) ([]*audit.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM reconciliation_records
		WHERE vault_id = $1
		ORDER BY sequence DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, vaultID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list reconciliation records", "vault_id", vaultID.String(), "error", err)
		return nil, fmt.Errorf("failed to list reconciliation records: %w", err)
	}
	defer rows.Close()

	records := make([]*audit.Record, 0, limit)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			r.logger.Error("Failed to scan reconciliation record", "error", err)
			return nil, fmt.Errorf("failed to scan reconciliation record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over reconciliation records: %w", err)
	}

	return records, nil
}

func scanRecord(row pgx.Row) (*audit.Record, error) {
	var record audit.Record
	var delta []byte
	var reason, comment, reference, idempotencyKey, correlationID *string
	err := row.Scan(
		&record.ID,
		&record.VaultID,
		&record.Sequence,
		&record.Kind,
		&record.Actor,
		&record.Timestamp,
		&record.PreviousBalance,
		&record.NewBalance,
		&record.Variance,
		&record.Discrepancy,
		&delta,
		&reason,
		&comment,
		&reference,
		&idempotencyKey,
		&correlationID,
	)
	if err != nil {
		return nil, err
	}

	record.DenominationDelta = denomination.Delta{}
	if len(delta) > 0 {
		if err := json.Unmarshal(delta, &record.DenominationDelta); err != nil {
			return nil, fmt.Errorf("failed to decode denomination delta: %w", err)
		}
	}
	record.Reason = deref(reason)
	record.Comment = deref(comment)
	record.Reference = deref(reference)
	record.IdempotencyKey = deref(idempotencyKey)
	record.CorrelationID = deref(correlationID)
	return &record, nil
}

// nullString maps "" to SQL NULL so unique constraints ignore absent keys
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
