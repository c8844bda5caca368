package collection

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines collection session persistence operations. Sessions are loaded with their entries.
type Repository interface {
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	GetOpenByKey(ctx context.Context, locationID, vaultShiftID string) (*Session, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Session, error)
	AddEntry(ctx context.Context, sessionID uuid.UUID, entry Entry) error
	RemoveEntry(ctx context.Context, sessionID uuid.UUID, machineID string) error

	// Update persists status fields if the stored version still equals expectedVersion
	Update(ctx context.Context, session *Session, expectedVersion int) error
	WithTx(tx pgx.Tx) Repository
}

// ErrSessionNotFound indicates a missing session
type ErrSessionNotFound struct {
	SessionID uuid.UUID
}

func (e ErrSessionNotFound) Error() string {
	return "collection session not found: " + e.SessionID.String()
}

// Is implements the errors.Is interface for ErrSessionNotFound
func (e ErrSessionNotFound) Is(target error) bool {
	_, ok := target.(ErrSessionNotFound)
	return ok
}

// ErrDuplicateMachine indicates a machine that already has an entry in the session
type ErrDuplicateMachine struct {
	SessionID uuid.UUID
	MachineID string
}

func (e ErrDuplicateMachine) Error() string {
	return "machine " + e.MachineID + " already has an entry in session " + e.SessionID.String()
}

// Is implements the errors.Is interface for ErrDuplicateMachine
func (e ErrDuplicateMachine) Is(target error) bool {
	_, ok := target.(ErrDuplicateMachine)
	return ok
}

// ErrEntryNotFound indicates a machine with no entry in the session
type ErrEntryNotFound struct {
	SessionID uuid.UUID
	MachineID string
}

func (e ErrEntryNotFound) Error() string {
	return "machine " + e.MachineID + " has no entry in session " + e.SessionID.String()
}

// Is implements the errors.Is interface for ErrEntryNotFound
func (e ErrEntryNotFound) Is(target error) bool {
	_, ok := target.(ErrEntryNotFound)
	return ok
}

// ErrEmptySession indicates a finalize with nothing to commit
type ErrEmptySession struct {
	SessionID uuid.UUID
}

func (e ErrEmptySession) Error() string {
	return "collection session has no entries: " + e.SessionID.String()
}

// Is implements the errors.Is interface for ErrEmptySession
func (e ErrEmptySession) Is(target error) bool {
	_, ok := target.(ErrEmptySession)
	return ok
}

// ErrAlreadyFinalized indicates a change to a session that has already been committed
type ErrAlreadyFinalized struct {
	SessionID uuid.UUID
}

func (e ErrAlreadyFinalized) Error() string {
	return "collection session already finalized: " + e.SessionID.String()
}

// Is implements the errors.Is interface for ErrAlreadyFinalized
func (e ErrAlreadyFinalized) Is(target error) bool {
	_, ok := target.(ErrAlreadyFinalized)
	return ok
}

// ErrOpenSessionExists indicates a Create that lost the race for a (location, vault shift) key
type ErrOpenSessionExists struct {
	LocationID   string
	VaultShiftID string
}

func (e ErrOpenSessionExists) Error() string {
	return "an open collection session already exists for " + e.LocationID + "/" + e.VaultShiftID
}

// Is implements the errors.Is interface for ErrOpenSessionExists
func (e ErrOpenSessionExists) Is(target error) bool {
	_, ok := target.(ErrOpenSessionExists)
	return ok
}
