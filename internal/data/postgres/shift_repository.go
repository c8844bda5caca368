package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/gaming-vault-ledger/internal/domain/shift"
	"github.com/gaming-vault-ledger/internal/domain/vault"
	"github.com/gaming-vault-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const shiftColumns = `id, cashier_id, cashier_name, location_id, float_amount, expected_balance, entered_count, entered_balance,
	discrepancy, status, force_closed, force_close_tag, force_close_notes, closed_by, closed_at, reviewed_by, reviewed_at,
	rejection_reason, version, created_at, updated_at`

// ShiftRepository implements the shift.Repository interface for PostgreSQL
type ShiftRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewShiftRepository creates a new PostgreSQL shift repository
func NewShiftRepository(logger *slog.Logger, db *persistence.PostgresDB) shift.Repository {
	return &ShiftRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *ShiftRepository) WithTx(tx pgx.Tx) shift.Repository {
	return &ShiftRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create opens a shift. A cashier with an unresolved shift at the location gets ErrActiveShiftExists.
func (r *ShiftRepository) Create(ctx context.Context, s *shift.CashierShift) error {
	query := `
		INSERT INTO cashier_shifts (id, cashier_id, cashier_name, location_id, float_amount, expected_balance, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.querier.Exec(ctx, query,
		s.ID,
		s.CashierID,
		s.CashierName,
		s.LocationID,
		s.Float,
		s.ExpectedBalance,
		s.Status,
		s.Version,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if persistence.IsUniqueViolation(err, "cashier_shifts_open_cashier_key") {
			return shift.ErrActiveShiftExists{CashierID: s.CashierID}
		}
		r.logger.Error("Failed to create shift", "cashier_id", s.CashierID, "error", err)
		return fmt.Errorf("failed to create shift: %w", err)
	}

	return nil
}

// GetByID reads a shift without locking it
func (r *ShiftRepository) GetByID(ctx context.Context, id uuid.UUID) (*shift.CashierShift, error) {
	query := `SELECT ` + shiftColumns + ` FROM cashier_shifts WHERE id = $1`

	s, err := scanShift(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shift.ErrShiftNotFound{ShiftID: id}
		}
		r.logger.Error("Failed to get shift", "shift_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get shift: %w", err)
	}
	return s, nil
}

// GetActiveByCashier returns the cashier's ACTIVE shift at a location
func (r *ShiftRepository) GetActiveByCashier(ctx context.Context, cashierID, locationID string) (*shift.CashierShift, error) {
	query := `SELECT ` + shiftColumns + ` FROM cashier_shifts WHERE cashier_id = $1 AND location_id = $2 AND status = $3`

	s, err := scanShift(r.querier.QueryRow(ctx, query, cashierID, locationID, shift.StatusActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shift.ErrShiftNotFound{CashierID: cashierID}
		}
		r.logger.Error("Failed to get active shift", "cashier_id", cashierID, "location_id", locationID, "error", err)
		return nil, fmt.Errorf("failed to get active shift: %w", err)
	}
	return s, nil
}

// Update persists every mutable field if the stored version still equals expectedVersion
func (r *ShiftRepository) Update(ctx context.Context, s *shift.CashierShift, expectedVersion int) error {
	var count []byte
	if s.EnteredCount != nil {
		encoded, err := json.Marshal(s.EnteredCount)
		if err != nil {
			return fmt.Errorf("failed to encode entered count: %w", err)
		}
		count = encoded
	}

	query := `
		UPDATE cashier_shifts
		SET expected_balance = $1, entered_count = $2, entered_balance = $3, discrepancy = $4, status = $5,
			force_closed = $6, force_close_tag = $7, force_close_notes = $8, closed_by = $9, closed_at = $10,
			reviewed_by = $11, reviewed_at = $12, rejection_reason = $13, version = $14, updated_at = $15
		WHERE id = $16 AND version = $17
	`

	result, err := r.querier.Exec(ctx, query,
		s.ExpectedBalance,
		count,
		s.EnteredBalance,
		s.Discrepancy,
		s.Status,
		s.ForceClosed,
		nullString(string(s.ForceCloseTag)),
		nullString(s.ForceCloseNotes),
		nullString(s.ClosedBy),
		s.ClosedAt,
		nullString(s.ReviewedBy),
		s.ReviewedAt,
		nullString(s.RejectionReason),
		expectedVersion+1,
		s.UpdatedAt,
		s.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update shift", "shift_id", s.ID.String(), "error", err)
		return fmt.Errorf("failed to update shift: %w", err)
	}

	if result.RowsAffected() == 0 {
		return vault.ErrConcurrentModification{Key: "shift:" + s.ID.String()}
	}

	s.Version = expectedVersion + 1
	return nil
}

// LockForUpdate row-locks the shift for the surrounding transaction
func (r *ShiftRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*shift.CashierShift, error) {
	query := `SELECT ` + shiftColumns + ` FROM cashier_shifts WHERE id = $1 FOR UPDATE`

	s, err := scanShift(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shift.ErrShiftNotFound{ShiftID: id}
		}
		if persistence.IsLockTimeout(err) {
			return nil, vault.ErrConcurrentModification{Key: "shift:" + id.String()}
		}
		r.logger.Error("Failed to lock shift for update", "shift_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock shift for update: %w", err)
	}
	return s, nil
}

func scanShift(row pgx.Row) (*shift.CashierShift, error) {
	var s shift.CashierShift
	var count []byte
	var tag, notes, closedBy, reviewedBy, rejection *string
	err := row.Scan(
		&s.ID,
		&s.CashierID,
		&s.CashierName,
		&s.LocationID,
		&s.Float,
		&s.ExpectedBalance,
		&count,
		&s.EnteredBalance,
		&s.Discrepancy,
		&s.Status,
		&s.ForceClosed,
		&tag,
		&notes,
		&closedBy,
		&s.ClosedAt,
		&reviewedBy,
		&s.ReviewedAt,
		&rejection,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(count) > 0 {
		var c denomination.CashCount
		if err := json.Unmarshal(count, &c); err != nil {
			return nil, fmt.Errorf("failed to decode entered count: %w", err)
		}
		s.EnteredCount = &c
	}
	s.ForceCloseTag = shift.ReasonTag(deref(tag))
	s.ForceCloseNotes = deref(notes)
	s.ClosedBy = deref(closedBy)
	s.ReviewedBy = deref(reviewedBy)
	s.RejectionReason = deref(rejection)
	return &s, nil
}
