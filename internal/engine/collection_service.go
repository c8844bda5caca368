package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gaming-vault-ledger/internal/domain/audit"
	"github.com/gaming-vault-ledger/internal/domain/collection"
	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/gaming-vault-ledger/internal/platform/locking"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CollectionService batches machine collections and commits each batch to the vault once
type CollectionService struct {
	ledger   *Ledger
	sessions collection.Repository
	logger   *slog.Logger
}

var _ CollectionAggregator = (*CollectionService)(nil)

// NewCollectionService creates a CollectionService that commits through ledger
func NewCollectionService(logger *slog.Logger, ledger *Ledger, sessions collection.Repository) *CollectionService {
	return &CollectionService{
		ledger:   ledger,
		sessions: sessions,
		logger:   logger,
	}
}

// StartOrGetSession returns the open session for the key, creating it on first use
func (c *CollectionService) StartOrGetSession(ctx context.Context, locationID, vaultShiftID string) (*collection.Session, error) {
	if locationID == "" || vaultShiftID == "" {
		return nil, collection.ErrEmptySessionKey
	}
	if _, err := c.ledger.vaults.GetByLocationID(ctx, locationID); err != nil {
		return nil, err
	}

	var session *collection.Session
	err := c.ledger.withKeyLock(ctx, locking.CollectionKey(locationID, vaultShiftID), "collection", func(ctx context.Context) error {
		existing, err := c.sessions.GetOpenByKey(ctx, locationID, vaultShiftID)
		if err == nil {
			session = existing
			return nil
		}
		if !errors.Is(err, collection.ErrSessionNotFound{}) {
			return err
		}

		created, err := collection.NewSession(locationID, vaultShiftID)
		if err != nil {
			return err
		}
		if err := c.sessions.Create(ctx, created); err != nil {
			if !errors.Is(err, collection.ErrOpenSessionExists{}) {
				return err
			}
			// another replica created it between our read and insert
			existing, err := c.sessions.GetOpenByKey(ctx, locationID, vaultShiftID)
			if err != nil {
				return err
			}
			session = existing
			return nil
		}
		c.logger.Info("Collection session started",
			"session_id", created.ID.String(),
			"location_id", locationID,
			"vault_shift_id", vaultShiftID,
		)
		session = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession reads a session with its entries
func (c *CollectionService) GetSession(ctx context.Context, sessionID uuid.UUID) (*collection.Session, error) {
	return c.sessions.GetByID(ctx, sessionID)
}

// AddEntry records one machine's cash in an open session
func (c *CollectionService) AddEntry(ctx context.Context, sessionID uuid.UUID, req EntryRequest) (*collection.Session, error) {
	entry, err := collection.NewEntry(req.MachineID, req.MachineName, req.Denominations, req.TotalAmount, req.CollectedAt)
	if err != nil {
		return nil, err
	}
	if err := c.ledger.checkAccepted(entry.Denominations); err != nil {
		return nil, err
	}

	return c.withSession(ctx, sessionID, func(ctx context.Context, sessionsTx collection.Repository, session *collection.Session) error {
		if err := session.AddEntry(entry); err != nil {
			return err
		}
		return sessionsTx.AddEntry(ctx, session.ID, entry)
	})
}

// RemoveEntry drops a machine's entry from an open session
func (c *CollectionService) RemoveEntry(ctx context.Context, sessionID uuid.UUID, machineID string) (*collection.Session, error) {
	return c.withSession(ctx, sessionID, func(ctx context.Context, sessionsTx collection.Repository, session *collection.Session) error {
		if err := session.RemoveEntry(machineID); err != nil {
			return err
		}
		return sessionsTx.RemoveEntry(ctx, session.ID, machineID)
	})
}

// Finalize merges every entry into one vault adjustment and freezes the session, atomically
func (c *CollectionService) Finalize(ctx context.Context, sessionID uuid.UUID, actor, correlationID string) (collection.FinalizeResult, error) {
	if actor == "" {
		return collection.FinalizeResult{}, ErrMissingActor
	}

	target, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return collection.FinalizeResult{}, err
	}
	if err := target.CanFinalize(); err != nil {
		return collection.FinalizeResult{}, err
	}
	inv, err := c.ledger.vaults.GetByLocationID(ctx, target.LocationID)
	if err != nil {
		return collection.FinalizeResult{}, err
	}

	var result collection.FinalizeResult
	err = c.ledger.observe(audit.KindCollectionFinalize, func() error {
		return c.ledger.withKeyLock(ctx, locking.SessionKey(sessionID), "collection", func(ctx context.Context) error {
			return c.ledger.withVaultLock(ctx, inv.VaultID, func(ctx context.Context) error {
				return c.ledger.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
					sessionsTx := c.sessions.WithTx(tx)
					session, err := sessionsTx.LockForUpdate(ctx, sessionID)
					if err != nil {
						return err
					}
					if err := session.CanFinalize(); err != nil {
						return err
					}
					version := session.Version

					merged, err := session.Merged()
					if err != nil {
						return err
					}
					record, err := c.ledger.mutate(ctx, tx, inv.VaultID, audit.Draft{
						Kind:          audit.KindCollectionFinalize,
						Actor:         actor,
						Reference:     session.ID.String(),
						CorrelationID: correlationID,
					}, applyDelta(denomination.FromSet(merged)))
					if err != nil {
						return err
					}

					if err := session.Finalize(actor, record.ID); err != nil {
						return err
					}
					if err := sessionsTx.Update(ctx, session, version); err != nil {
						return err
					}

					result = collection.FinalizeResult{
						SessionID:      session.ID,
						TotalCollected: merged.Total(),
						EntryCount:     len(session.Entries),
						RecordID:       record.ID,
					}
					return nil
				})
			})
		})
	})
	if err != nil {
		return collection.FinalizeResult{}, err
	}

	c.logger.Info("Collection session finalized",
		"session_id", sessionID.String(),
		"total_collected", result.TotalCollected,
		"entry_count", result.EntryCount,
		"record_id", result.RecordID.String(),
		"correlation_id", correlationID,
	)
	return result, nil
}

type sessionChange func(ctx context.Context, sessionsTx collection.Repository, session *collection.Session) error

func (c *CollectionService) withSession(ctx context.Context, sessionID uuid.UUID, change sessionChange) (*collection.Session, error) {
	var session *collection.Session
	err := c.ledger.withKeyLock(ctx, locking.SessionKey(sessionID), "collection", func(ctx context.Context) error {
		return c.ledger.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
			sessionsTx := c.sessions.WithTx(tx)
			locked, err := sessionsTx.LockForUpdate(ctx, sessionID)
			if err != nil {
				return err
			}
			if err := change(ctx, sessionsTx, locked); err != nil {
				return err
			}
			session = locked
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	session.SortEntries()
	return session, nil
}
