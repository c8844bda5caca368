package shift

import (
	"errors"
	"time"

	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrEmptyCashier              = errors.New("cashier id cannot be empty")
	ErrEmptyLocation             = errors.New("location id cannot be empty")
	ErrNegativeFloat             = errors.New("float cannot be negative")
	ErrNegativeExpectedBalance   = errors.New("transaction would make the expected balance negative")
	ErrInvalidReasonTag          = errors.New("force close reason must be one of NO_SHOW, LOCKOUT, EMERGENCY, OTHER")
	ErrOverrideRequiresBreakdown = errors.New("denomination override requires the cashier count to be a breakdown")
)

// Status is the lifecycle state of a cashier shift. A rejected review returns the shift to
// ACTIVE, so rejection is recorded on the trail rather than as a status.
type Status string

const (
	StatusActive        Status = "ACTIVE"
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusResolved      Status = "RESOLVED"
)

// ReasonTag explains why a manager force-closed a shift
type ReasonTag string

const (
	ReasonNoShow    ReasonTag = "NO_SHOW"
	ReasonLockout   ReasonTag = "LOCKOUT"
	ReasonEmergency ReasonTag = "EMERGENCY"
	ReasonOther     ReasonTag = "OTHER"
)

// IsValid reports whether t is a known tag
func (t ReasonTag) IsValid() bool {
	switch t {
	case ReasonNoShow, ReasonLockout, ReasonEmergency, ReasonOther:
		return true
	}
	return false
}

// CashierShift is one cashier's custody of a float at a location
type CashierShift struct {
	ID              uuid.UUID               `json:"id"`
	CashierID       string                  `json:"cashier_id"`
	CashierName     string                  `json:"cashier_name"`
	LocationID      string                  `json:"location_id"`
	Float           int64                   `json:"float"`
	ExpectedBalance int64                   `json:"expected_balance"`
	EnteredCount    *denomination.CashCount `json:"entered_count,omitempty"`
	EnteredBalance  *int64                  `json:"entered_balance,omitempty"`
	Discrepancy     *int64                  `json:"discrepancy,omitempty"`
	Status          Status                  `json:"status"`
	ForceClosed     bool                    `json:"force_closed"`
	ForceCloseTag   ReasonTag               `json:"force_close_tag,omitempty"`
	ForceCloseNotes string                  `json:"force_close_notes,omitempty"`
	ClosedBy        string                  `json:"closed_by,omitempty"`
	ClosedAt        *time.Time              `json:"closed_at,omitempty"`
	ReviewedBy      string                  `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time              `json:"reviewed_at,omitempty"`
	RejectionReason string                  `json:"rejection_reason,omitempty"`
	Version         int                     `json:"version"` // For optimistic locking
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// UnbalancedShiftInfo is what a close hands to manager review
type UnbalancedShiftInfo struct {
	ShiftID              uuid.UUID                   `json:"shift_id"`
	CashierID            string                      `json:"cashier_id"`
	CashierName          string                      `json:"cashier_name"`
	LocationID           string                      `json:"location_id"`
	ExpectedBalance      int64                       `json:"expected_balance"`
	EnteredBalance       int64                       `json:"entered_balance"`
	Discrepancy          int64                       `json:"discrepancy"`
	CountKind            denomination.CountKind      `json:"count_kind"`
	EnteredDenominations []denomination.Denomination `json:"entered_denominations"`
	ForceClosed          bool                        `json:"force_closed"`
	ForceCloseTag        ReasonTag                   `json:"force_close_tag,omitempty"`
	ClosedAt             time.Time                   `json:"closed_at"`
}

// NewShift opens a shift with the issued float as the expected balance
func NewShift(cashierID, cashierName, locationID string, float int64) (*CashierShift, error) {
	if cashierID == "" {
		return nil, ErrEmptyCashier
	}
	if locationID == "" {
		return nil, ErrEmptyLocation
	}
	if float < 0 {
		return nil, ErrNegativeFloat
	}

	now := time.Now().UTC()
	return &CashierShift{
		ID:              uuid.New(),
		CashierID:       cashierID,
		CashierName:     cashierName,
		LocationID:      locationID,
		Float:           float,
		ExpectedBalance: float,
		Status:          StatusActive,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// RecordTransaction moves the expected drawer balance by a signed amount
func (s *CashierShift) RecordTransaction(amount int64) error {
	if s.Status != StatusActive {
		return ErrInvalidTransition{ShiftID: s.ID, From: s.Status, Action: "record transaction"}
	}
	next, err := denomination.AddAmount(s.ExpectedBalance, amount)
	if err != nil {
		return err
	}
	if next < 0 {
		return ErrNegativeExpectedBalance
	}
	s.ExpectedBalance = next
	s.touch()
	return nil
}

// Close submits the cashier's count and moves the shift to review
func (s *CashierShift) Close(count denomination.CashCount, accepted []int64, actor string) (UnbalancedShiftInfo, error) {
	if s.Status != StatusActive {
		return UnbalancedShiftInfo{}, ErrInvalidTransition{ShiftID: s.ID, From: s.Status, Action: "close"}
	}
	if err := count.Validate(accepted); err != nil {
		return UnbalancedShiftInfo{}, err
	}

	entered := denomination.ResolveTotal(count)
	discrepancy := entered - s.ExpectedBalance
	now := time.Now().UTC()

	s.EnteredCount = &count
	s.EnteredBalance = &entered
	s.Discrepancy = &discrepancy
	s.Status = StatusPendingReview
	s.ClosedBy = actor
	s.ClosedAt = &now
	s.touch()

	return s.UnbalancedInfo(), nil
}

// ForceClose closes the shift on the cashier's behalf
func (s *CashierShift) ForceClose(count denomination.CashCount, accepted []int64, tag ReasonTag, notes, actor string) (UnbalancedShiftInfo, error) {
	if !tag.IsValid() {
		return UnbalancedShiftInfo{}, ErrInvalidReasonTag
	}
	info, err := s.Close(count, accepted, actor)
	if err != nil {
		return UnbalancedShiftInfo{}, err
	}

	s.ForceClosed = true
	s.ForceCloseTag = tag
	s.ForceCloseNotes = notes
	info.ForceClosed = true
	info.ForceCloseTag = tag
	return info, nil
}

// Resolve completes manager review
func (s *CashierShift) Resolve(actor string) error {
	if s.Status != StatusPendingReview {
		return ErrInvalidTransition{ShiftID: s.ID, From: s.Status, Action: "resolve"}
	}
	now := time.Now().UTC()
	s.Status = StatusResolved
	s.ReviewedBy = actor
	s.ReviewedAt = &now
	s.touch()
	return nil
}

// Reject sends the shift back to the cashier for a recount, clearing the submitted count
func (s *CashierShift) Reject(reason, actor string) error {
	if s.Status != StatusPendingReview {
		return ErrInvalidTransition{ShiftID: s.ID, From: s.Status, Action: "reject"}
	}
	now := time.Now().UTC()
	s.Status = StatusActive
	s.EnteredCount = nil
	s.EnteredBalance = nil
	s.Discrepancy = nil
	s.ForceClosed = false
	s.ForceCloseTag = ""
	s.ForceCloseNotes = ""
	s.ClosedBy = ""
	s.ClosedAt = nil
	s.RejectionReason = reason
	s.ReviewedBy = actor
	s.ReviewedAt = &now
	s.touch()
	return nil
}

// UnbalancedInfo summarises a shift awaiting review
func (s *CashierShift) UnbalancedInfo() UnbalancedShiftInfo {
	info := UnbalancedShiftInfo{
		ShiftID:         s.ID,
		CashierID:       s.CashierID,
		CashierName:     s.CashierName,
		LocationID:      s.LocationID,
		ExpectedBalance: s.ExpectedBalance,
		ForceClosed:     s.ForceClosed,
		ForceCloseTag:   s.ForceCloseTag,
	}
	if s.EnteredBalance != nil {
		info.EnteredBalance = *s.EnteredBalance
	}
	if s.Discrepancy != nil {
		info.Discrepancy = *s.Discrepancy
	}
	if s.EnteredCount != nil {
		info.CountKind = s.EnteredCount.Kind
		info.EnteredDenominations = s.EnteredCount.Breakdown().Entries()
	}
	if s.ClosedAt != nil {
		info.ClosedAt = *s.ClosedAt
	}
	return info
}

// OriginalBreakdown returns the cashier's counted set, required for a denomination override
func (s *CashierShift) OriginalBreakdown() (denomination.Set, error) {
	if s.EnteredCount == nil || s.EnteredCount.Kind != denomination.CountKindBreakdown {
		return nil, ErrOverrideRequiresBreakdown
	}
	return s.EnteredCount.Breakdown(), nil
}

func (s *CashierShift) touch() {
	s.UpdatedAt = time.Now().UTC()
}
