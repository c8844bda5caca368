// Package locking serializes mutations per vault, shift and collection session.
// The in-process LocalLocker serves a single replica; RedisLocker extends the same
// contract across replicas.
package locking

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrLockTimeout is returned when a key could not be acquired in time
var ErrLockTimeout = errors.New("timed out waiting for lock")

// Locker runs fn while holding the lock for key. fn's error is returned unchanged.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// VaultKey locks one vault's inventory
func VaultKey(vaultID uuid.UUID) string {
	return "lock:vault:" + vaultID.String()
}

// ShiftKey locks one cashier shift
func ShiftKey(shiftID uuid.UUID) string {
	return "lock:shift:" + shiftID.String()
}

// CashierKey locks shift creation and force close for a cashier at a location. Force close
// takes it before the shift key.
func CashierKey(cashierID, locationID string) string {
	return "lock:cashier:" + locationID + ":" + cashierID
}

// SessionKey locks one collection session
func SessionKey(sessionID uuid.UUID) string {
	return "lock:collection:" + sessionID.String()
}

// CollectionKey locks the open-session lookup for a (location, vault shift) pair
func CollectionKey(locationID, vaultShiftID string) string {
	return "lock:collection-key:" + locationID + ":" + vaultShiftID
}
