package vault

import (
	"errors"
	"time"

	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrEmptyLocation = errors.New("location id cannot be empty")
	ErrBalanceDrift  = errors.New("vault balance does not match its denomination total")
)

// Inventory is the authoritative denomination set held in one vault
type Inventory struct {
	VaultID          uuid.UUID        `json:"vault_id"`
	LocationID       string           `json:"location_id"`
	Denominations    denomination.Set `json:"denominations"`
	Balance          int64            `json:"balance"` // Always Denominations.Total()
	AuditSequence    int64            `json:"audit_sequence"`
	Version          int              `json:"version"` // For optimistic locking
	LastReconciledAt *time.Time       `json:"last_reconciled_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// NewInventory provisions an empty vault for a location
func NewInventory(locationID string) (*Inventory, error) {
	if locationID == "" {
		return nil, ErrEmptyLocation
	}

	now := time.Now().UTC()
	return &Inventory{
		VaultID:       uuid.New(),
		LocationID:    locationID,
		Denominations: denomination.Set{},
		Balance:       0,
		AuditSequence: 0,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Apply mutates the inventory by a signed delta. The inventory is unchanged on error.
func (i *Inventory) Apply(delta denomination.Delta) error {
	next, err := i.Denominations.Apply(delta)
	if err != nil {
		return err
	}
	i.replace(next)
	return nil
}

// Replace swaps the whole denomination set, as done by a manual reconciliation
func (i *Inventory) Replace(set denomination.Set) error {
	if err := set.Validate(); err != nil {
		return err
	}
	i.replace(set.Clone())
	now := i.UpdatedAt
	i.LastReconciledAt = &now
	return nil
}

func (i *Inventory) replace(set denomination.Set) {
	i.Denominations = set
	i.Balance = set.Total()
	i.UpdatedAt = time.Now().UTC()
}

// NextSequence reserves the next audit sequence number for this vault
func (i *Inventory) NextSequence() int64 {
	i.AuditSequence++
	return i.AuditSequence
}

// CheckConservation reports whether the stored balance matches the denomination total
func (i *Inventory) CheckConservation() error {
	if i.Balance != i.Denominations.Total() {
		return ErrBalanceDrift
	}
	return nil
}

// Snapshot is the lock-free read model returned by balance queries
type Snapshot struct {
	VaultID          uuid.UUID                   `json:"vault_id"`
	LocationID       string                      `json:"location_id"`
	Balance          int64                       `json:"balance"`
	Denominations    []denomination.Denomination `json:"denominations"`
	AuditSequence    int64                       `json:"audit_sequence"`
	LastReconciledAt *time.Time                  `json:"last_reconciled_at,omitempty"`
}

// Snapshot copies the inventory into its read model
func (i *Inventory) Snapshot() Snapshot {
	return Snapshot{
		VaultID:          i.VaultID,
		LocationID:       i.LocationID,
		Balance:          i.Balance,
		Denominations:    i.Denominations.Entries(),
		AuditSequence:    i.AuditSequence,
		LastReconciledAt: i.LastReconciledAt,
	}
}
