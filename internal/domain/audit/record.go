package audit

import (
	"time"

	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/google/uuid"
)

// Kind identifies the action that produced a reconciliation record
type Kind string

const (
	KindShiftResolve       Kind = "SHIFT_RESOLVE"
	KindShiftReject        Kind = "SHIFT_REJECT"
	KindShiftForceClose    Kind = "SHIFT_FORCE_CLOSE"
	KindCollectionFinalize Kind = "COLLECTION_FINALIZE"
	KindCashArrival        Kind = "CASH_ARRIVAL"
	KindManualReconcile    Kind = "MANUAL_RECONCILE"
	KindVaultAdjustment    Kind = "VAULT_ADJUSTMENT"
)

// IsValid reports whether k is a known kind
func (k Kind) IsValid() bool {
	switch k {
	case KindShiftResolve, KindShiftReject, KindShiftForceClose, KindCollectionFinalize,
		KindCashArrival, KindManualReconcile, KindVaultAdjustment:
		return true
	}
	return false
}

// RequiresComment reports whether the kind can only be recorded with a policy-checked comment
func (k Kind) RequiresComment() bool {
	return k == KindManualReconcile || k == KindShiftReject
}

// Record is an immutable reconciliation audit entry. One is written per mutating action.
type Record struct {
	ID                uuid.UUID          `json:"id"`
	VaultID           uuid.UUID          `json:"vault_id"`
	Sequence          int64              `json:"sequence"`
	Kind              Kind               `json:"kind"`
	Actor             string             `json:"actor"`
	Timestamp         time.Time          `json:"timestamp"`
	PreviousBalance   int64              `json:"previous_balance"`
	NewBalance        int64              `json:"new_balance"`
	Variance          int64              `json:"variance"`
	Discrepancy       *int64             `json:"discrepancy,omitempty"`
	DenominationDelta denomination.Delta `json:"denomination_delta"`
	Reason            string             `json:"reason,omitempty"`
	Comment           string             `json:"comment,omitempty"`
	Reference         string             `json:"reference,omitempty"`
	IdempotencyKey    string             `json:"idempotency_key,omitempty"`
	CorrelationID     string             `json:"correlation_id,omitempty"`
}

// Draft carries the caller-supplied part of a record
type Draft struct {
	Kind           Kind
	Actor          string
	Reason         string
	Comment        string
	Reference      string
	IdempotencyKey string
	CorrelationID  string
	Discrepancy    *int64
}

// NewRecord stamps a draft with the vault state it describes
func NewRecord(d Draft, vaultID uuid.UUID, sequence, previousBalance, newBalance int64, delta denomination.Delta) *Record {
	if delta == nil {
		delta = denomination.Delta{}
	}
	return &Record{
		ID:                uuid.New(),
		VaultID:           vaultID,
		Sequence:          sequence,
		Kind:              d.Kind,
		Actor:             d.Actor,
		Timestamp:         time.Now().UTC(),
		PreviousBalance:   previousBalance,
		NewBalance:        newBalance,
		Variance:          newBalance - previousBalance,
		Discrepancy:       d.Discrepancy,
		DenominationDelta: delta,
		Reason:            d.Reason,
		Comment:           d.Comment,
		Reference:         d.Reference,
		IdempotencyKey:    d.IdempotencyKey,
		CorrelationID:     d.CorrelationID,
	}
}
