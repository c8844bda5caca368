package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository is the append-only store of reconciliation records
type Repository interface {
	Append(ctx context.Context, record *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	GetByIdempotencyKey(ctx context.Context, vaultID uuid.UUID, key string) (*Record, error)
	ListByVaultID(ctx context.Context, vaultID uuid.UUID, limit, offset int) ([]*Record, error)
	WithTx(tx pgx.Tx) Repository
}

// ProjectionRepository manages the read model of audit records with pagination support
type ProjectionRepository interface {
	Upsert(ctx context.Context, record *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	GetByVaultID(ctx context.Context, vaultID uuid.UUID, limit, offset int) ([]*Record, error)
	CountByVaultID(ctx context.Context, vaultID uuid.UUID) (int64, error)
}

// ErrRecordNotFound indicates a missing audit record
type ErrRecordNotFound struct {
	RecordID uuid.UUID
}

func (e ErrRecordNotFound) Error() string {
	return "reconciliation record not found: " + e.RecordID.String()
}

// Is implements the errors.Is interface for ErrRecordNotFound
func (e ErrRecordNotFound) Is(target error) bool {
	t, ok := target.(ErrRecordNotFound)
	if !ok {
		return false
	}
	// If the target RecordID is empty, consider it a match for any ErrRecordNotFound
	if t.RecordID == uuid.Nil {
		return true
	}
	return e.RecordID == t.RecordID
}

// ErrDuplicateRecord indicates a sequence or idempotency key collision for a vault
type ErrDuplicateRecord struct {
	VaultID uuid.UUID
	Field   string
}

func (e ErrDuplicateRecord) Error() string {
	return "duplicate reconciliation record for vault " + e.VaultID.String() + " on " + e.Field
}

// Is implements the errors.Is interface for ErrDuplicateRecord
func (e ErrDuplicateRecord) Is(target error) bool {
	_, ok := target.(ErrDuplicateRecord)
	return ok
}
