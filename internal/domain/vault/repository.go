package vault

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines vault inventory persistence operations
type Repository interface {
	Create(ctx context.Context, inv *Inventory) error
	GetByID(ctx context.Context, id uuid.UUID) (*Inventory, error)
	GetByLocationID(ctx context.Context, locationID string) (*Inventory, error)

	// Update persists the inventory if the stored version still equals expectedVersion
	Update(ctx context.Context, inv *Inventory, expectedVersion int) error

	// LockForUpdate acquires a row lock for the duration of the surrounding transaction
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Inventory, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrConcurrentModification indicates lock contention or an optimistic version mismatch
type ErrConcurrentModification struct {
	VaultID uuid.UUID
	Key     string
}

func (e ErrConcurrentModification) Error() string {
	if e.VaultID == uuid.Nil {
		return "concurrent modification detected for lock key: " + e.Key
	}
	return "concurrent modification detected for vault: " + e.VaultID.String()
}

// Is implements the errors.Is interface for ErrConcurrentModification
func (e ErrConcurrentModification) Is(target error) bool {
	t, ok := target.(ErrConcurrentModification)
	if !ok {
		return false
	}
	if t.VaultID == uuid.Nil && t.Key == "" {
		return true
	}
	return e.VaultID == t.VaultID && e.Key == t.Key
}

// ErrVaultNotFound indicates a missing vault
type ErrVaultNotFound struct {
	VaultID    uuid.UUID
	LocationID string
}

func (e ErrVaultNotFound) Error() string {
	if e.LocationID != "" {
		return "vault not found for location: " + e.LocationID
	}
	return "vault not found: " + e.VaultID.String()
}

// Is implements the errors.Is interface for ErrVaultNotFound
func (e ErrVaultNotFound) Is(target error) bool {
	_, ok := target.(ErrVaultNotFound)
	return ok
}

// ErrDuplicateLocation indicates a second vault provisioned for one location
type ErrDuplicateLocation struct {
	LocationID string
}

func (e ErrDuplicateLocation) Error() string {
	return "vault already provisioned for location: " + e.LocationID
}
