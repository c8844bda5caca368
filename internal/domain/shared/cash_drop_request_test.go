package shared

import (
	"testing"

	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCashDropRequest_Validate(t *testing.T) {
	valid := func() CashDropRequest {
		return CashDropRequest{
			RequestID:     uuid.New(),
			VaultID:       uuid.New(),
			MachineID:     "slot-17",
			Denominations: []denomination.Denomination{{FaceValue: 20, Quantity: 3}, {FaceValue: 1, Quantity: 4}},
		}
	}

	t.Run("Valid", func(t *testing.T) {
		req := valid()
		set, err := req.Validate()
		require.NoError(t, err)
		assert.Equal(t, int64(64), set.Total())
	})

	tests := []struct {
		name        string
		mutate      func(r *CashDropRequest)
		expectedErr error
	}{
		{"MissingRequestID", func(r *CashDropRequest) { r.RequestID = uuid.Nil }, ErrMissingRequestID},
		{"MissingVaultID", func(r *CashDropRequest) { r.VaultID = uuid.Nil }, ErrMissingVaultID},
		{"MissingMachineID", func(r *CashDropRequest) { r.MachineID = "" }, ErrMissingMachineID},
		{"DuplicateFace", func(r *CashDropRequest) {
			r.Denominations = append(r.Denominations, denomination.Denomination{FaceValue: 20, Quantity: 1})
		}, denomination.ErrDuplicateFaceValue},
		{"EmptyDrop", func(r *CashDropRequest) { r.Denominations = nil }, denomination.ErrEmptySet},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := valid()
			tc.mutate(&req)
			_, err := req.Validate()
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func TestArrivalSource_IsValid(t *testing.T) {
	assert.True(t, ArrivalSourceMachineDrop.IsValid())
	assert.False(t, ArrivalSource("LOTTERY").IsValid())
}
