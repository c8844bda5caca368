package engine

import (
	"context"
	"log/slog"

	"github.com/gaming-vault-ledger/internal/domain/audit"
	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/gaming-vault-ledger/internal/domain/shift"
	"github.com/gaming-vault-ledger/internal/platform/locking"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ShiftService drives cashier shifts from float issuance through manager review
type ShiftService struct {
	ledger *Ledger
	shifts shift.Repository
	logger *slog.Logger
}

var _ ShiftReconciler = (*ShiftService)(nil)

// NewShiftService creates a ShiftService that commits vault changes through ledger
func NewShiftService(logger *slog.Logger, ledger *Ledger, shifts shift.Repository) *ShiftService {
	return &ShiftService{
		ledger: ledger,
		shifts: shifts,
		logger: logger,
	}
}

// OpenShift issues a float. Issuing a float does not touch the vault.
func (s *ShiftService) OpenShift(ctx context.Context, req OpenShiftRequest) (*shift.CashierShift, error) {
	opened, err := shift.NewShift(req.CashierID, req.CashierName, req.LocationID, req.Float)
	if err != nil {
		return nil, err
	}

	err = s.ledger.withKeyLock(ctx, locking.CashierKey(req.CashierID, req.LocationID), "shift", func(ctx context.Context) error {
		return s.shifts.Create(ctx, opened)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Shift opened",
		"shift_id", opened.ID.String(),
		"cashier_id", opened.CashierID,
		"location_id", opened.LocationID,
		"float", opened.Float,
	)
	return opened, nil
}

// GetShift reads a shift
func (s *ShiftService) GetShift(ctx context.Context, shiftID uuid.UUID) (*shift.CashierShift, error) {
	return s.shifts.GetByID(ctx, shiftID)
}

// RecordShiftTransaction moves the drawer's expected balance
func (s *ShiftService) RecordShiftTransaction(ctx context.Context, shiftID uuid.UUID, amount int64) (*shift.CashierShift, error) {
	var updated *shift.CashierShift
	err := s.withShift(ctx, shiftID, func(ctx context.Context, tx pgx.Tx, current *shift.CashierShift) error {
		if err := current.RecordTransaction(amount); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CloseShift submits the cashier's count. No vault change or audit record results.
func (s *ShiftService) CloseShift(ctx context.Context, shiftID uuid.UUID, count denomination.CashCount, actor string) (shift.UnbalancedShiftInfo, error) {
	var info shift.UnbalancedShiftInfo
	err := s.withShift(ctx, shiftID, func(ctx context.Context, tx pgx.Tx, current *shift.CashierShift) error {
		closer := actor
		if closer == "" {
			closer = current.CashierID
		}
		var err error
		info, err = current.Close(count, s.ledger.accepted, closer)
		return err
	})
	if err != nil {
		return shift.UnbalancedShiftInfo{}, err
	}

	s.logger.Info("Shift closed", "shift_id", shiftID.String(), "discrepancy", info.Discrepancy)
	return info, nil
}

// ForceCloseShift closes a cashier's active shift on their behalf and records it against the vault
func (s *ShiftService) ForceCloseShift(ctx context.Context, req ForceCloseRequest) (shift.UnbalancedShiftInfo, error) {
	if req.Actor == "" {
		return shift.UnbalancedShiftInfo{}, ErrMissingActor
	}
	if !req.Tag.IsValid() {
		return shift.UnbalancedShiftInfo{}, shift.ErrInvalidReasonTag
	}
	notes := s.ledger.policy.Optional(req.Notes)
	if req.Tag == shift.ReasonOther {
		var err error
		if notes, err = s.ledger.policy.Require(req.Notes); err != nil {
			return shift.UnbalancedShiftInfo{}, err
		}
	}

	var info shift.UnbalancedShiftInfo
	err := s.ledger.withKeyLock(ctx, locking.CashierKey(req.CashierID, req.LocationID), "shift", func(ctx context.Context) error {
		active, err := s.shifts.GetActiveByCashier(ctx, req.CashierID, req.LocationID)
		if err != nil {
			return err
		}
		return s.withShiftAndVault(ctx, audit.KindShiftForceClose, active, func(ctx context.Context, tx pgx.Tx, current *shift.CashierShift, vaultID uuid.UUID) error {
			var err error
			info, err = current.ForceClose(req.Count, s.ledger.accepted, req.Tag, notes, req.Actor)
			if err != nil {
				return err
			}
			discrepancy := info.Discrepancy
			_, err = s.ledger.mutate(ctx, tx, vaultID, audit.Draft{
				Kind:          audit.KindShiftForceClose,
				Actor:         req.Actor,
				Reason:        string(req.Tag),
				Comment:       notes,
				Reference:     current.ID.String(),
				CorrelationID: req.CorrelationID,
				Discrepancy:   &discrepancy,
			}, noChange)
			return err
		})
	})
	if err != nil {
		return shift.UnbalancedShiftInfo{}, err
	}

	s.logger.Warn("Shift force closed",
		"shift_id", info.ShiftID.String(),
		"cashier_id", req.CashierID,
		"reason_tag", string(req.Tag),
		"actor", req.Actor,
		"correlation_id", req.CorrelationID,
	)
	return info, nil
}

// ResolveShift completes review. With an edited breakdown only its difference from the
// cashier's count is applied to the vault; otherwise the vault is left as is.
func (s *ShiftService) ResolveShift(ctx context.Context, req ResolveRequest) (*audit.Record, error) {
	if req.Actor == "" {
		return nil, ErrMissingActor
	}
	comment := s.ledger.policy.Optional(req.Comment)
	if req.Denominations != nil {
		if err := req.Denominations.Validate(); err != nil {
			return nil, err
		}
		if err := s.ledger.checkAccepted(req.Denominations); err != nil {
			return nil, err
		}
		if total := req.Denominations.Total(); total != req.FinalBalance {
			return nil, shift.ErrBalanceMismatch{Expected: total, Got: req.FinalBalance}
		}
	}

	target, err := s.shifts.GetByID(ctx, req.ShiftID)
	if err != nil {
		return nil, err
	}

	var record *audit.Record
	err = s.withShiftAndVault(ctx, audit.KindShiftResolve, target, func(ctx context.Context, tx pgx.Tx, current *shift.CashierShift, vaultID uuid.UUID) error {
		if current.Status != shift.StatusPendingReview || current.EnteredBalance == nil {
			return shift.ErrInvalidTransition{ShiftID: current.ID, From: current.Status, Action: "resolve"}
		}

		delta := denomination.Delta{}
		if req.Denominations == nil {
			if req.FinalBalance != *current.EnteredBalance {
				return shift.ErrBalanceMismatch{Expected: *current.EnteredBalance, Got: req.FinalBalance}
			}
		} else {
			original, err := current.OriginalBreakdown()
			if err != nil {
				return err
			}
			delta = denomination.Diff(req.Denominations, original)
		}

		discrepancy := req.FinalBalance - current.ExpectedBalance
		if err := current.Resolve(req.Actor); err != nil {
			return err
		}

		var err error
		record, err = s.ledger.mutate(ctx, tx, vaultID, audit.Draft{
			Kind:          audit.KindShiftResolve,
			Actor:         req.Actor,
			Comment:       comment,
			Reference:     current.ID.String(),
			CorrelationID: req.CorrelationID,
			Discrepancy:   &discrepancy,
		}, applyDelta(delta))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Shift resolved",
		"shift_id", req.ShiftID.String(),
		"record_id", record.ID.String(),
		"variance", record.Variance,
		"correlation_id", req.CorrelationID,
	)
	return record, nil
}

// RejectShift returns the shift to ACTIVE for a recount. The vault is not changed.
func (s *ShiftService) RejectShift(ctx context.Context, req RejectRequest) (*shift.CashierShift, error) {
	if req.Actor == "" {
		return nil, ErrMissingActor
	}
	reason, err := s.ledger.policy.Require(req.Reason)
	if err != nil {
		return nil, err
	}

	target, err := s.shifts.GetByID(ctx, req.ShiftID)
	if err != nil {
		return nil, err
	}

	var rejected *shift.CashierShift
	err = s.withShiftAndVault(ctx, audit.KindShiftReject, target, func(ctx context.Context, tx pgx.Tx, current *shift.CashierShift, vaultID uuid.UUID) error {
		discrepancy := current.Discrepancy
		if err := current.Reject(reason, req.Actor); err != nil {
			return err
		}
		rejected = current
		_, err := s.ledger.mutate(ctx, tx, vaultID, audit.Draft{
			Kind:          audit.KindShiftReject,
			Actor:         req.Actor,
			Comment:       reason,
			Reference:     current.ID.String(),
			CorrelationID: req.CorrelationID,
			Discrepancy:   discrepancy,
		}, noChange)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Shift rejected", "shift_id", req.ShiftID.String(), "actor", req.Actor)
	return rejected, nil
}

type shiftChange func(ctx context.Context, tx pgx.Tx, current *shift.CashierShift) error

// withShift runs change against the row-locked shift and persists it
func (s *ShiftService) withShift(ctx context.Context, shiftID uuid.UUID, change shiftChange) error {
	return s.ledger.withKeyLock(ctx, locking.ShiftKey(shiftID), "shift", func(ctx context.Context) error {
		return s.ledger.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
			return s.applyLocked(ctx, tx, shiftID, change)
		})
	})
}

// withShiftAndVault takes the shift lock then the lock of the vault at the shift's location
func (s *ShiftService) withShiftAndVault(
	ctx context.Context,
	kind audit.Kind,
	target *shift.CashierShift,
	change func(ctx context.Context, tx pgx.Tx, current *shift.CashierShift, vaultID uuid.UUID) error,
) error {
	inv, err := s.ledger.vaults.GetByLocationID(ctx, target.LocationID)
	if err != nil {
		return err
	}

	return s.ledger.observe(kind, func() error {
		return s.ledger.withKeyLock(ctx, locking.ShiftKey(target.ID), "shift", func(ctx context.Context) error {
			return s.ledger.withVaultLock(ctx, inv.VaultID, func(ctx context.Context) error {
				return s.ledger.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
					return s.applyLocked(ctx, tx, target.ID, func(ctx context.Context, tx pgx.Tx, current *shift.CashierShift) error {
						return change(ctx, tx, current, inv.VaultID)
					})
				})
			})
		})
	})
}

func (s *ShiftService) applyLocked(ctx context.Context, tx pgx.Tx, shiftID uuid.UUID, change shiftChange) error {
	shiftsTx := s.shifts.WithTx(tx)
	current, err := shiftsTx.LockForUpdate(ctx, shiftID)
	if err != nil {
		return err
	}
	version := current.Version
	if err := change(ctx, tx, current); err != nil {
		return err
	}
	return shiftsTx.Update(ctx, current, version)
}
