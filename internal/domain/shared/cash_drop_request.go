package shared

import (
	"errors"
	"time"

	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/google/uuid"
)

var (
	ErrMissingRequestID = errors.New("request id is required")
	ErrMissingVaultID   = errors.New("vault id is required")
	ErrMissingMachineID = errors.New("machine id is required")
)

// CashDropRequest defines a Kafka message for a soft-count machine drop arriving at the vault
type CashDropRequest struct {
	RequestID     uuid.UUID                   `json:"request_id"`
	VaultID       uuid.UUID                   `json:"vault_id"`
	MachineID     string                      `json:"machine_id"`
	Denominations []denomination.Denomination `json:"denominations"`
	Notes         string                      `json:"notes,omitempty"`
	Actor         string                      `json:"actor,omitempty"`
	CorrelationID string                      `json:"correlation_id"`
	Timestamp     time.Time                   `json:"timestamp"`
}

// Validate checks the fields the worker cannot recover from
func (r *CashDropRequest) Validate() (denomination.Set, error) {
	if r.RequestID == uuid.Nil {
		return nil, ErrMissingRequestID
	}
	if r.VaultID == uuid.Nil {
		return nil, ErrMissingVaultID
	}
	if r.MachineID == "" {
		return nil, ErrMissingMachineID
	}
	set, err := denomination.FromEntries(r.Denominations)
	if err != nil {
		return nil, err
	}
	if set.IsEmpty() {
		return nil, denomination.ErrEmptySet
	}
	return set, nil
}
