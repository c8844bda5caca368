package handler

import (
	"fmt"
	"time"

	"github.com/gaming-vault-ledger/internal/domain/audit"
	"github.com/gaming-vault-ledger/internal/domain/denomination"
)

// DeltaEntry is a signed quantity change for one face value
type DeltaEntry struct {
	FaceValue int64 `json:"face_value" binding:"required,gt=0"`
	Quantity  int64 `json:"quantity"`
}

type ProvisionVaultRequest struct {
	LocationID string `json:"location_id" binding:"required"`
}

type AdjustVaultRequest struct {
	Delta     []DeltaEntry `json:"delta" binding:"required,min=1,dive"`
	Comment   string       `json:"comment"`
	Reference string       `json:"reference"`
}

type ReconcileVaultRequest struct {
	Denominations []denomination.Denomination `json:"denominations" binding:"required"`
	Reason        string                      `json:"reason"`
	Comment       string                      `json:"comment"`
}

type CashArrivalRequest struct {
	Source         string                      `json:"source" binding:"required,oneof=BANK_WITHDRAWAL OWNER_INJECTION MACHINE_DROP"`
	Denominations  []denomination.Denomination `json:"denominations" binding:"required,min=1"`
	Notes          string                      `json:"notes"`
	IdempotencyKey string                      `json:"idempotency_key"`
}

type OpenShiftRequest struct {
	CashierID   string `json:"cashier_id" binding:"required"`
	CashierName string `json:"cashier_name"`
	LocationID  string `json:"location_id" binding:"required"`
	Float       int64  `json:"float" binding:"min=0"`
}

type ShiftTransactionRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// CashCountRequest is either a raw total or a denomination breakdown. Touched lists every face
// value the counter explicitly confirmed, which lets an all-zero count through.
type CashCountRequest struct {
	Kind          string                      `json:"kind" binding:"required,oneof=TOTAL BREAKDOWN"`
	Amount        int64                       `json:"amount"`
	Denominations []denomination.Denomination `json:"denominations"`
	Touched       []int64                     `json:"touched"`
}

type CloseShiftRequest struct {
	Count CashCountRequest `json:"count"`
}

type ForceCloseShiftRequest struct {
	CashierID  string           `json:"cashier_id" binding:"required"`
	LocationID string           `json:"location_id" binding:"required"`
	Count      CashCountRequest `json:"count"`
	Tag        string           `json:"tag" binding:"required"`
	Notes      string           `json:"notes"`
}

// ResolveShiftRequest confirms the cashier's count when Denominations is empty
type ResolveShiftRequest struct {
	FinalBalance  int64                       `json:"final_balance"`
	Comment       string                      `json:"comment"`
	Denominations []denomination.Denomination `json:"denominations"`
}

type RejectShiftRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type StartCollectionRequest struct {
	LocationID   string `json:"location_id" binding:"required"`
	VaultShiftID string `json:"vault_shift_id" binding:"required"`
}

type CollectionEntryRequest struct {
	MachineID     string                      `json:"machine_id" binding:"required"`
	MachineName   string                      `json:"machine_name"`
	Denominations []denomination.Denomination `json:"denominations" binding:"required,min=1"`
	TotalAmount   *int64                      `json:"total_amount"`
	CollectedAt   *time.Time                  `json:"collected_at"`
}

type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=20" binding:"min=1,max=100"`
}

// AuditRecordResponse renders the denomination delta as a list ordered by face value
type AuditRecordResponse struct {
	ID                string                      `json:"id"`
	VaultID           string                      `json:"vault_id"`
	Sequence          int64                       `json:"sequence"`
	Kind              string                      `json:"kind"`
	Actor             string                      `json:"actor"`
	Timestamp         string                      `json:"timestamp"`
	PreviousBalance   int64                       `json:"previous_balance"`
	NewBalance        int64                       `json:"new_balance"`
	Variance          int64                       `json:"variance"`
	Discrepancy       *int64                      `json:"discrepancy,omitempty"`
	DenominationDelta []denomination.Denomination `json:"denomination_delta"`
	Reason            string                      `json:"reason,omitempty"`
	Comment           string                      `json:"comment,omitempty"`
	Reference         string                      `json:"reference,omitempty"`
}

func toDelta(entries []DeltaEntry) (denomination.Delta, error) {
	delta := make(denomination.Delta, len(entries))
	for _, e := range entries {
		if _, exists := delta[e.FaceValue]; exists {
			return nil, fmt.Errorf("%w: %d", denomination.ErrDuplicateFaceValue, e.FaceValue)
		}
		delta[e.FaceValue] = e.Quantity
	}
	return delta, nil
}

func (r CashCountRequest) toCashCount() (denomination.CashCount, error) {
	if denomination.CountKind(r.Kind) == denomination.CountKindTotal {
		return denomination.TotalCount(r.Amount, r.Touched...), nil
	}
	set, err := denomination.FromEntries(r.Denominations)
	if err != nil {
		return denomination.CashCount{}, err
	}
	return denomination.BreakdownCount(set, r.Touched...), nil
}

// optionalSet returns nil when no entries were sent
func optionalSet(entries []denomination.Denomination) (denomination.Set, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	return denomination.FromEntries(entries)
}

func mapRecordToResponse(record *audit.Record) AuditRecordResponse {
	return AuditRecordResponse{
		ID:                record.ID.String(),
		VaultID:           record.VaultID.String(),
		Sequence:          record.Sequence,
		Kind:              string(record.Kind),
		Actor:             record.Actor,
		Timestamp:         record.Timestamp.UTC().Format(time.RFC3339Nano),
		PreviousBalance:   record.PreviousBalance,
		NewBalance:        record.NewBalance,
		Variance:          record.Variance,
		Discrepancy:       record.Discrepancy,
		DenominationDelta: denomination.Set(record.DenominationDelta).Entries(),
		Reason:            record.Reason,
		Comment:           record.Comment,
		Reference:         record.Reference,
	}
}
