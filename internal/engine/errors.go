package engine

import (
	"errors"

	"github.com/gaming-vault-ledger/internal/domain/audit"
	"github.com/gaming-vault-ledger/internal/domain/collection"
	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/gaming-vault-ledger/internal/domain/shift"
	"github.com/gaming-vault-ledger/internal/domain/vault"
	"github.com/gaming-vault-ledger/internal/platform/metrics"
)

// Common errors
var (
	ErrMissingActor    = errors.New("actor is required for every vault mutation")
	ErrInvalidSource   = errors.New("cash arrival source must be one of BANK_WITHDRAWAL, OWNER_INJECTION, MACHINE_DROP")
	ErrEmptyAdjustment = errors.New("adjustment does not change any denomination")
)

// rejections are the errors caused by the request itself. Retrying them cannot succeed.
var rejections = []error{
	ErrMissingActor,
	ErrInvalidSource,
	ErrEmptyAdjustment,
	denomination.ErrInvalidDenomination,
	denomination.ErrDuplicateFaceValue,
	denomination.ErrEmptySet,
	denomination.ErrInsufficientStock{},
	denomination.ErrUnconfirmedCount,
	denomination.ErrInvalidCount,
	denomination.ErrAmountOverflow,
	audit.ErrInvalidComment{},
	vault.ErrVaultNotFound{},
	vault.ErrEmptyLocation,
	shift.ErrShiftNotFound{},
	shift.ErrInvalidTransition{},
	shift.ErrBalanceMismatch{},
	shift.ErrActiveShiftExists{},
	shift.ErrEmptyCashier,
	shift.ErrEmptyLocation,
	shift.ErrNegativeFloat,
	shift.ErrNegativeExpectedBalance,
	shift.ErrInvalidReasonTag,
	shift.ErrOverrideRequiresBreakdown,
	collection.ErrSessionNotFound{},
	collection.ErrDuplicateMachine{},
	collection.ErrEntryNotFound{},
	collection.ErrEmptySession{},
	collection.ErrAlreadyFinalized{},
	collection.ErrEmptyMachineID,
	collection.ErrEmptySessionKey,
	collection.ErrEntryTotalMismatch,
	collection.ErrMissingDenomination,
}

// IsRejection reports whether err was caused by invalid input or state rather than infrastructure
func IsRejection(err error) bool {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	var dup vault.ErrDuplicateLocation
	return errors.As(err, &dup)
}

// IsConflict reports whether err is lock contention or a stale version
func IsConflict(err error) bool {
	return errors.Is(err, vault.ErrConcurrentModification{})
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case IsConflict(err):
		return metrics.OutcomeConflict
	case IsRejection(err):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
