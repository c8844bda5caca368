package shift

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines cashier shift persistence operations
type Repository interface {
	Create(ctx context.Context, shift *CashierShift) error
	GetByID(ctx context.Context, id uuid.UUID) (*CashierShift, error)

	// GetActiveByCashier returns the cashier's ACTIVE shift at a location
	GetActiveByCashier(ctx context.Context, cashierID, locationID string) (*CashierShift, error)

	// Update persists the shift if the stored version still equals expectedVersion
	Update(ctx context.Context, shift *CashierShift, expectedVersion int) error
	LockForUpdate(ctx context.Context, id uuid.UUID) (*CashierShift, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrShiftNotFound indicates a missing shift
type ErrShiftNotFound struct {
	ShiftID   uuid.UUID
	CashierID string
}

func (e ErrShiftNotFound) Error() string {
	if e.CashierID != "" {
		return "no active shift for cashier: " + e.CashierID
	}
	return "shift not found: " + e.ShiftID.String()
}

// Is implements the errors.Is interface for ErrShiftNotFound
func (e ErrShiftNotFound) Is(target error) bool {
	_, ok := target.(ErrShiftNotFound)
	return ok
}

// ErrInvalidTransition indicates an action the shift's current status does not allow
type ErrInvalidTransition struct {
	ShiftID uuid.UUID
	From    Status
	Action  string
}

func (e ErrInvalidTransition) Error() string {
	return "cannot " + e.Action + " shift " + e.ShiftID.String() + " in status " + string(e.From)
}

// Is implements the errors.Is interface for ErrInvalidTransition
func (e ErrInvalidTransition) Is(target error) bool {
	_, ok := target.(ErrInvalidTransition)
	return ok
}

// ErrBalanceMismatch indicates a resolution whose final balance disagrees with the count it confirms
type ErrBalanceMismatch struct {
	Expected int64
	Got      int64
}

func (e ErrBalanceMismatch) Error() string {
	return "final balance " + strconv.FormatInt(e.Got, 10) + " does not match counted total " + strconv.FormatInt(e.Expected, 10)
}

// Is implements the errors.Is interface for ErrBalanceMismatch
func (e ErrBalanceMismatch) Is(target error) bool {
	_, ok := target.(ErrBalanceMismatch)
	return ok
}

// ErrActiveShiftExists indicates a second open shift for the same cashier and location
type ErrActiveShiftExists struct {
	CashierID string
}

func (e ErrActiveShiftExists) Error() string {
	return "cashier already has an active shift: " + e.CashierID
}

// Is implements the errors.Is interface for ErrActiveShiftExists
func (e ErrActiveShiftExists) Is(target error) bool {
	_, ok := target.(ErrActiveShiftExists)
	return ok
}
