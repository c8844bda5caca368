package collection

import (
	"errors"
	"sort"
	"time"

	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrEmptyMachineID      = errors.New("machine id cannot be empty")
	ErrEmptySessionKey     = errors.New("location id and vault shift id are required")
	ErrEntryTotalMismatch  = errors.New("entry total amount does not match its denominations")
	ErrMissingDenomination = errors.New("collection entry must carry a denomination breakdown")
)

// Status is the lifecycle state of a collection session
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusFinalized Status = "FINALIZED"
)

// Entry is the cash removed from one gaming machine
type Entry struct {
	MachineID     string           `json:"machine_id"`
	MachineName   string           `json:"machine_name"`
	Denominations denomination.Set `json:"denominations"`
	TotalAmount   int64            `json:"total_amount"`
	CollectedAt   time.Time        `json:"collected_at"`
}

// NewEntry validates a machine count. A supplied total must agree with the breakdown.
func NewEntry(machineID, machineName string, set denomination.Set, totalAmount *int64, collectedAt time.Time) (Entry, error) {
	if machineID == "" {
		return Entry{}, ErrEmptyMachineID
	}
	if len(set) == 0 {
		return Entry{}, ErrMissingDenomination
	}
	if err := set.Validate(); err != nil {
		return Entry{}, err
	}
	if set.IsEmpty() {
		return Entry{}, denomination.ErrEmptySet
	}
	total := set.Total()
	if totalAmount != nil && *totalAmount != total {
		return Entry{}, ErrEntryTotalMismatch
	}
	if collectedAt.IsZero() {
		collectedAt = time.Now().UTC()
	}
	return Entry{
		MachineID:     machineID,
		MachineName:   machineName,
		Denominations: set.Clone(),
		TotalAmount:   total,
		CollectedAt:   collectedAt,
	}, nil
}

// Session batches machine collections for one vault shift
type Session struct {
	ID           uuid.UUID  `json:"id"`
	LocationID   string     `json:"location_id"`
	VaultShiftID string     `json:"vault_shift_id"`
	Status       Status     `json:"status"`
	Entries      []Entry    `json:"entries"`
	RecordID     *uuid.UUID `json:"record_id,omitempty"`
	FinalizedBy  string     `json:"finalized_by,omitempty"`
	FinalizedAt  *time.Time `json:"finalized_at,omitempty"`
	Version      int        `json:"version"` // For optimistic locking
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewSession opens an empty session for a (location, vault shift) key
func NewSession(locationID, vaultShiftID string) (*Session, error) {
	if locationID == "" || vaultShiftID == "" {
		return nil, ErrEmptySessionKey
	}
	now := time.Now().UTC()
	return &Session{
		ID:           uuid.New(),
		LocationID:   locationID,
		VaultShiftID: vaultShiftID,
		Status:       StatusOpen,
		Entries:      []Entry{},
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// AddEntry appends a machine count. A machine must be removed before it can be re-added.
func (s *Session) AddEntry(e Entry) error {
	if s.Status == StatusFinalized {
		return ErrAlreadyFinalized{SessionID: s.ID}
	}
	if s.indexOf(e.MachineID) >= 0 {
		return ErrDuplicateMachine{SessionID: s.ID, MachineID: e.MachineID}
	}
	merged, err := s.Merged()
	if err != nil {
		return err
	}
	if _, err := denomination.Merge(merged, e.Denominations); err != nil {
		return err
	}
	s.Entries = append(s.Entries, e)
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// RemoveEntry drops a machine count
func (s *Session) RemoveEntry(machineID string) error {
	if s.Status == StatusFinalized {
		return ErrAlreadyFinalized{SessionID: s.ID}
	}
	idx := s.indexOf(machineID)
	if idx < 0 {
		return ErrEntryNotFound{SessionID: s.ID, MachineID: machineID}
	}
	s.Entries = append(s.Entries[:idx], s.Entries[idx+1:]...)
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Total is the running value of every entry
func (s *Session) Total() int64 {
	merged, err := s.Merged()
	if err != nil {
		return 0
	}
	return merged.Total()
}

// Merged combines every entry into the single set committed on finalize.
// AddEntry refuses entries that would overflow it.
func (s *Session) Merged() (denomination.Set, error) {
	merged := denomination.Set{}
	for _, e := range s.Entries {
		next, err := denomination.Merge(merged, e.Denominations)
		if err != nil {
			return nil, err
		}
		merged = next
	}
	return merged, nil
}

// CanFinalize checks the finalize guards without changing state
func (s *Session) CanFinalize() error {
	if s.Status == StatusFinalized {
		return ErrAlreadyFinalized{SessionID: s.ID}
	}
	if len(s.Entries) == 0 {
		return ErrEmptySession{SessionID: s.ID}
	}
	return nil
}

// Finalize freezes the session once its merged count has been committed to the vault
func (s *Session) Finalize(actor string, recordID uuid.UUID) error {
	if err := s.CanFinalize(); err != nil {
		return err
	}
	now := time.Now().UTC()
	s.Status = StatusFinalized
	s.RecordID = &recordID
	s.FinalizedBy = actor
	s.FinalizedAt = &now
	s.UpdatedAt = now
	return nil
}

// SortEntries orders entries by collection time, then machine id
func (s *Session) SortEntries() {
	sort.SliceStable(s.Entries, func(i, j int) bool {
		if s.Entries[i].CollectedAt.Equal(s.Entries[j].CollectedAt) {
			return s.Entries[i].MachineID < s.Entries[j].MachineID
		}
		return s.Entries[i].CollectedAt.Before(s.Entries[j].CollectedAt)
	})
}

func (s *Session) indexOf(machineID string) int {
	for i, e := range s.Entries {
		if e.MachineID == machineID {
			return i
		}
	}
	return -1
}

// FinalizeResult reports what a finalize committed
type FinalizeResult struct {
	SessionID      uuid.UUID `json:"session_id"`
	TotalCollected int64     `json:"total_collected"`
	EntryCount     int       `json:"entry_count"`
	RecordID       uuid.UUID `json:"record_id"`
}
