package engine

import (
	"context"
	"testing"

	"github.com/gaming-vault-ledger/internal/domain/audit"
	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/gaming-vault-ledger/internal/domain/shift"
	"github.com/gaming-vault-ledger/internal/platform/locking"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) openShift(t *testing.T, cashierID string, float int64) *shift.CashierShift {
	t.Helper()
	opened, err := h.shifts.OpenShift(context.Background(), OpenShiftRequest{
		CashierID:   cashierID,
		CashierName: "Cashier " + cashierID,
		LocationID:  "loc-1",
		Float:       float,
	})
	require.NoError(t, err)
	return opened
}

func (h *harness) closedShift(t *testing.T, float int64, count denomination.CashCount) *shift.CashierShift {
	t.Helper()
	opened := h.openShift(t, "cashier-1", float)
	_, err := h.shifts.CloseShift(context.Background(), opened.ID, count, "")
	require.NoError(t, err)
	return opened
}

func TestShiftService_OpenShift(t *testing.T) {
	h := newHarness(t, nil)
	vaultID := h.provision(t, "loc-1", denomination.Set{100: 10})

	opened := h.openShift(t, "cashier-1", 450)
	assert.Equal(t, shift.StatusActive, opened.Status)
	assert.Equal(t, int64(450), opened.ExpectedBalance)
	assert.Equal(t, int64(1000), h.store.vault(t, vaultID).Balance, "issuing a float does not touch the vault")

	_, err := h.shifts.OpenShift(context.Background(), OpenShiftRequest{CashierID: "cashier-1", LocationID: "loc-1"})
	assert.ErrorIs(t, err, shift.ErrActiveShiftExists{})

	_, err = h.shifts.OpenShift(context.Background(), OpenShiftRequest{CashierID: "cashier-2", LocationID: "loc-1", Float: -5})
	assert.ErrorIs(t, err, shift.ErrNegativeFloat)
}

func TestShiftService_CloseShift(t *testing.T) {
	ctx := context.Background()

	t.Run("ComputesDiscrepancyWithoutVaultChange", func(t *testing.T) {
		h := newHarness(t, nil)
		vaultID := h.provision(t, "loc-1", denomination.Set{100: 10})
		opened := h.openShift(t, "cashier-1", 400)

		_, err := h.shifts.RecordShiftTransaction(ctx, opened.ID, 100)
		require.NoError(t, err)
		_, err = h.shifts.RecordShiftTransaction(ctx, opened.ID, -50)
		require.NoError(t, err)

		info, err := h.shifts.CloseShift(ctx, opened.ID, denomination.BreakdownCount(denomination.Set{100: 5}), "")
		require.NoError(t, err)
		assert.Equal(t, int64(450), info.ExpectedBalance)
		assert.Equal(t, int64(500), info.EnteredBalance)
		assert.Equal(t, int64(50), info.Discrepancy)

		stored, err := h.shifts.GetShift(ctx, opened.ID)
		require.NoError(t, err)
		assert.Equal(t, shift.StatusPendingReview, stored.Status)
		assert.Equal(t, "cashier-1", stored.ClosedBy)

		assert.Len(t, h.store.recordsFor(vaultID), 1, "a close writes no audit record")
	})

	t.Run("UnconfirmedZeroCount", func(t *testing.T) {
		h := newHarness(t, nil)
		h.provision(t, "loc-1", nil)
		opened := h.openShift(t, "cashier-1", 0)

		_, err := h.shifts.CloseShift(ctx, opened.ID, denomination.TotalCount(0, 100, 50), "")
		assert.ErrorIs(t, err, denomination.ErrUnconfirmedCount)

		info, err := h.shifts.CloseShift(ctx, opened.ID, denomination.TotalCount(0, acceptedFaces...), "")
		require.NoError(t, err)
		assert.Equal(t, int64(0), info.Discrepancy)
	})

	t.Run("TransactionsRejectedAfterClose", func(t *testing.T) {
		h := newHarness(t, nil)
		h.provision(t, "loc-1", nil)
		closed := h.closedShift(t, 100, denomination.TotalCount(100))

		_, err := h.shifts.RecordShiftTransaction(ctx, closed.ID, 10)
		assert.ErrorIs(t, err, shift.ErrInvalidTransition{})
	})

	t.Run("UnknownShift", func(t *testing.T) {
		h := newHarness(t, nil)
		_, err := h.shifts.CloseShift(ctx, uuid.New(), denomination.TotalCount(10), "")
		assert.ErrorIs(t, err, shift.ErrShiftNotFound{})
	})
}

func TestShiftService_ResolveShift(t *testing.T) {
	ctx := context.Background()
	cashierCount := denomination.Set{100: 5, 20: 20, 10: 10}

	t.Run("ConfirmAsEnteredLeavesVault", func(t *testing.T) {
		h := newHarness(t, nil)
		vaultID := h.provision(t, "loc-1", denomination.Set{100: 10})
		closed := h.closedShift(t, 1020, denomination.BreakdownCount(cashierCount))

		record, err := h.shifts.ResolveShift(ctx, ResolveRequest{
			ShiftID:      closed.ID,
			FinalBalance: 1000,
			Comment:      "short twenty accepted",
			Actor:        "manager-1",
		})
		require.NoError(t, err)
		assert.Equal(t, audit.KindShiftResolve, record.Kind)
		assert.Equal(t, int64(0), record.Variance)
		require.NotNil(t, record.Discrepancy)
		assert.Equal(t, int64(-20), *record.Discrepancy)
		assert.Equal(t, closed.ID.String(), record.Reference)

		stored, err := h.shifts.GetShift(ctx, closed.ID)
		require.NoError(t, err)
		assert.Equal(t, shift.StatusResolved, stored.Status)
		assert.Equal(t, "manager-1", stored.ReviewedBy)
		assert.Equal(t, int64(1000), h.store.vault(t, vaultID).Balance)
		h.assertLedgerConsistent(t, vaultID)
	})

	t.Run("OverrideAppliesOnlyTheDifference", func(t *testing.T) {
		h := newHarness(t, nil)
		vaultID := h.provision(t, "loc-1", cashierCount)
		closed := h.closedShift(t, 1000, denomination.BreakdownCount(cashierCount))

		record, err := h.shifts.ResolveShift(ctx, ResolveRequest{
			ShiftID:       closed.ID,
			FinalBalance:  980,
			Denominations: denomination.Set{100: 5, 20: 19, 10: 10},
			Comment:       "one twenty was a counterfeit",
			Actor:         "manager-1",
		})
		require.NoError(t, err)
		assert.Equal(t, denomination.Delta{20: -1}, record.DenominationDelta)
		assert.Equal(t, int64(1000), record.PreviousBalance)
		assert.Equal(t, int64(980), record.NewBalance)
		assert.Equal(t, int64(-20), *record.Discrepancy)

		inv := h.store.vault(t, vaultID)
		assert.Equal(t, int64(980), inv.Balance)
		assert.Equal(t, int64(19), inv.Denominations[20])
		h.assertLedgerConsistent(t, vaultID)
	})

	t.Run("OverrideBeyondStockLeavesShiftPending", func(t *testing.T) {
		h := newHarness(t, nil)
		vaultID := h.provision(t, "loc-1", denomination.Set{100: 10})
		closed := h.closedShift(t, 100, denomination.BreakdownCount(denomination.Set{20: 5}))

		_, err := h.shifts.ResolveShift(ctx, ResolveRequest{
			ShiftID:       closed.ID,
			FinalBalance:  60,
			Denominations: denomination.Set{20: 3},
			Comment:       "two twenties missing",
			Actor:         "manager-1",
		})
		assert.ErrorIs(t, err, denomination.ErrInsufficientStock{FaceValue: 20})

		stored, err := h.shifts.GetShift(ctx, closed.ID)
		require.NoError(t, err)
		assert.Equal(t, shift.StatusPendingReview, stored.Status)
		assert.Equal(t, int64(1000), h.store.vault(t, vaultID).Balance)
		assert.Len(t, h.store.recordsFor(vaultID), 1)
	})

	t.Run("BalanceMustMatch", func(t *testing.T) {
		h := newHarness(t, nil)
		h.provision(t, "loc-1", cashierCount)
		closed := h.closedShift(t, 1000, denomination.BreakdownCount(cashierCount))

		_, err := h.shifts.ResolveShift(ctx, ResolveRequest{ShiftID: closed.ID, FinalBalance: 990, Actor: "manager-1"})
		assert.ErrorIs(t, err, shift.ErrBalanceMismatch{})

		_, err = h.shifts.ResolveShift(ctx, ResolveRequest{
			ShiftID:       closed.ID,
			FinalBalance:  990,
			Denominations: denomination.Set{100: 5, 20: 19, 10: 10},
			Actor:         "manager-1",
		})
		assert.ErrorIs(t, err, shift.ErrBalanceMismatch{})
	})

	t.Run("OverrideRequiresBreakdown", func(t *testing.T) {
		h := newHarness(t, nil)
		h.provision(t, "loc-1", denomination.Set{100: 10})
		closed := h.closedShift(t, 500, denomination.TotalCount(500))

		_, err := h.shifts.ResolveShift(ctx, ResolveRequest{
			ShiftID:       closed.ID,
			FinalBalance:  500,
			Denominations: denomination.Set{100: 5},
			Actor:         "manager-1",
		})
		assert.ErrorIs(t, err, shift.ErrOverrideRequiresBreakdown)
	})

	t.Run("OnlyPendingShiftsResolve", func(t *testing.T) {
		h := newHarness(t, nil)
		h.provision(t, "loc-1", nil)
		opened := h.openShift(t, "cashier-1", 100)

		_, err := h.shifts.ResolveShift(ctx, ResolveRequest{ShiftID: opened.ID, FinalBalance: 100, Actor: "manager-1"})
		assert.ErrorIs(t, err, shift.ErrInvalidTransition{})
	})
}

func TestShiftService_RejectShift(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	vaultID := h.provision(t, "loc-1", denomination.Set{100: 10})
	closed := h.closedShift(t, 450, denomination.TotalCount(500))

	_, err := h.shifts.RejectShift(ctx, RejectRequest{ShiftID: closed.ID, Reason: "recount", Actor: "manager-1"})
	assert.ErrorIs(t, err, audit.ErrInvalidComment{})

	rejected, err := h.shifts.RejectShift(ctx, RejectRequest{ShiftID: closed.ID, Reason: "recount the fifties please", Actor: "manager-1"})
	require.NoError(t, err)
	assert.Equal(t, shift.StatusActive, rejected.Status)
	assert.Nil(t, rejected.EnteredBalance)
	assert.Nil(t, rejected.Discrepancy)

	records := h.store.recordsFor(vaultID)
	require.Len(t, records, 2)
	last := records[1]
	assert.Equal(t, audit.KindShiftReject, last.Kind)
	assert.Equal(t, int64(0), last.Variance)
	assert.Equal(t, "recount the fifties please", last.Comment)
	require.NotNil(t, last.Discrepancy)
	assert.Equal(t, int64(50), *last.Discrepancy)
	assert.Equal(t, int64(1000), h.store.vault(t, vaultID).Balance)

	// the cashier can close again after a reject
	info, err := h.shifts.CloseShift(ctx, closed.ID, denomination.TotalCount(450), "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Discrepancy)
	h.assertLedgerConsistent(t, vaultID)
}

func TestShiftService_ForceCloseShift(t *testing.T) {
	ctx := context.Background()

	t.Run("RecordsAgainstVault", func(t *testing.T) {
		h := newHarness(t, nil)
		vaultID := h.provision(t, "loc-1", denomination.Set{100: 10})
		opened := h.openShift(t, "cashier-1", 200)

		info, err := h.shifts.ForceCloseShift(ctx, ForceCloseRequest{
			CashierID:  "cashier-1",
			LocationID: "loc-1",
			Count:      denomination.TotalCount(180),
			Tag:        shift.ReasonNoShow,
			Actor:      "manager-1",
		})
		require.NoError(t, err)
		assert.True(t, info.ForceClosed)
		assert.Equal(t, int64(-20), info.Discrepancy)

		stored, err := h.shifts.GetShift(ctx, opened.ID)
		require.NoError(t, err)
		assert.Equal(t, shift.StatusPendingReview, stored.Status)
		assert.Equal(t, "manager-1", stored.ClosedBy)

		records := h.store.recordsFor(vaultID)
		require.Len(t, records, 2)
		assert.Equal(t, audit.KindShiftForceClose, records[1].Kind)
		assert.Equal(t, "NO_SHOW", records[1].Reason)
		assert.Equal(t, opened.ID.String(), records[1].Reference)
		assert.Equal(t, int64(0), records[1].Variance)
		h.assertLedgerConsistent(t, vaultID)
	})

	t.Run("LocksCashierBeforeShiftAndVault", func(t *testing.T) {
		locker := &recordingLocker{}
		h := newHarness(t, locker)
		vaultID := h.provision(t, "loc-1", nil)
		opened := h.openShift(t, "cashier-1", 50)
		locker.reset()

		_, err := h.shifts.ForceCloseShift(ctx, ForceCloseRequest{
			CashierID:  "cashier-1",
			LocationID: "loc-1",
			Count:      denomination.TotalCount(50),
			Tag:        shift.ReasonLockout,
			Actor:      "manager-1",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{
			locking.CashierKey("cashier-1", "loc-1"),
			locking.ShiftKey(opened.ID),
			locking.VaultKey(vaultID),
		}, locker.taken())
	})

	t.Run("OtherTagRequiresNotes", func(t *testing.T) {
		h := newHarness(t, nil)
		h.provision(t, "loc-1", nil)
		h.openShift(t, "cashier-1", 0)
		req := ForceCloseRequest{
			CashierID:  "cashier-1",
			LocationID: "loc-1",
			Count:      denomination.TotalCount(10),
			Tag:        shift.ReasonOther,
			Notes:      "left",
			Actor:      "manager-1",
		}

		_, err := h.shifts.ForceCloseShift(ctx, req)
		assert.ErrorIs(t, err, audit.ErrInvalidComment{})

		req.Notes = "fire alarm evacuation"
		_, err = h.shifts.ForceCloseShift(ctx, req)
		assert.NoError(t, err)
	})

	t.Run("ValidationErrors", func(t *testing.T) {
		h := newHarness(t, nil)
		h.provision(t, "loc-1", nil)

		_, err := h.shifts.ForceCloseShift(ctx, ForceCloseRequest{CashierID: "c", LocationID: "loc-1", Tag: "VACATION", Actor: "m"})
		assert.ErrorIs(t, err, shift.ErrInvalidReasonTag)
		_, err = h.shifts.ForceCloseShift(ctx, ForceCloseRequest{CashierID: "c", LocationID: "loc-1", Tag: shift.ReasonLockout})
		assert.ErrorIs(t, err, ErrMissingActor)
		_, err = h.shifts.ForceCloseShift(ctx, ForceCloseRequest{CashierID: "ghost", LocationID: "loc-1", Tag: shift.ReasonLockout, Actor: "m"})
		assert.ErrorIs(t, err, shift.ErrShiftNotFound{})
	})
}
