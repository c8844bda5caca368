// Package engine is the transactional core of the vault ledger. Every balance mutation runs
// under the vault's lock and inside one database transaction that locks the inventory row,
// appends the audit record, updates the inventory and queues the outbox message.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gaming-vault-ledger/internal/config"
	"github.com/gaming-vault-ledger/internal/domain/audit"
	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/gaming-vault-ledger/internal/domain/outbox"
	"github.com/gaming-vault-ledger/internal/domain/vault"
	"github.com/gaming-vault-ledger/internal/platform/locking"
	"github.com/gaming-vault-ledger/internal/platform/metrics"
	"github.com/gaming-vault-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Ledger owns vault inventories and the audit trail
type Ledger struct {
	db       persistence.TxManager
	locker   locking.Locker
	vaults   vault.Repository
	audits   audit.Repository
	outbox   outbox.Repository
	policy   audit.CommentPolicy
	accepted []int64
	metrics  *metrics.Recorder
	logger   *slog.Logger
}

var _ VaultLedger = (*Ledger)(nil)

// NewLedger creates a Ledger. recorder may be nil.
func NewLedger(
	logger *slog.Logger,
	db persistence.TxManager,
	locker locking.Locker,
	vaults vault.Repository,
	audits audit.Repository,
	outboxRepo outbox.Repository,
	cfg config.EngineConfig,
	recorder *metrics.Recorder,
) *Ledger {
	return &Ledger{
		db:       db,
		locker:   locker,
		vaults:   vaults,
		audits:   audits,
		outbox:   outboxRepo,
		policy:   audit.NewCommentPolicy(cfg.CommentMinLength),
		accepted: cfg.AcceptedDenominations,
		metrics:  recorder,
		logger:   logger,
	}
}

// CommentPolicy returns the policy every mutation is checked against
func (l *Ledger) CommentPolicy() audit.CommentPolicy {
	return l.policy
}

// ProvisionVault creates the empty vault for a location
func (l *Ledger) ProvisionVault(ctx context.Context, locationID string) (*vault.Inventory, error) {
	inv, err := vault.NewInventory(locationID)
	if err != nil {
		return nil, err
	}
	if err := l.vaults.Create(ctx, inv); err != nil {
		return nil, err
	}
	l.logger.Info("Vault provisioned", "vault_id", inv.VaultID.String(), "location_id", locationID)
	l.metrics.SetBalance(inv.VaultID.String(), 0)
	return inv, nil
}

// GetVaultBalance reads a snapshot without taking any lock
func (l *Ledger) GetVaultBalance(ctx context.Context, vaultID uuid.UUID) (vault.Snapshot, error) {
	inv, err := l.vaults.GetByID(ctx, vaultID)
	if err != nil {
		return vault.Snapshot{}, err
	}
	return inv.Snapshot(), nil
}

// ListAuditRecords pages through the authoritative trail, newest first
func (l *Ledger) ListAuditRecords(ctx context.Context, vaultID uuid.UUID, limit, offset int) ([]*audit.Record, error) {
	if _, err := l.vaults.GetByID(ctx, vaultID); err != nil {
		return nil, err
	}
	return l.audits.ListByVaultID(ctx, vaultID, limit, offset)
}

// AdjustVault applies a signed change to a vault's denominations
func (l *Ledger) AdjustVault(ctx context.Context, req AdjustRequest) (*audit.Record, error) {
	if req.Actor == "" {
		return nil, ErrMissingActor
	}
	if req.Delta.IsZero() {
		return nil, ErrEmptyAdjustment
	}
	comment := l.policy.Optional(req.Comment)

	draft := audit.Draft{
		Kind:          audit.KindVaultAdjustment,
		Actor:         req.Actor,
		Comment:       comment,
		Reference:     req.Reference,
		CorrelationID: req.CorrelationID,
	}
	return l.Adjust(ctx, req.VaultID, req.Delta, draft)
}

// Adjust applies delta under the vault lock and records it with the draft's kind
func (l *Ledger) Adjust(ctx context.Context, vaultID uuid.UUID, delta denomination.Delta, draft audit.Draft) (*audit.Record, error) {
	var record *audit.Record
	err := l.observe(draft.Kind, func() error {
		return l.withVaultLock(ctx, vaultID, func(ctx context.Context) error {
			return l.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
				var err error
				record, err = l.mutate(ctx, tx, vaultID, draft, applyDelta(delta))
				return err
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// SetAbsolute replaces the whole inventory. Only manual reconciliation uses it.
func (l *Ledger) SetAbsolute(ctx context.Context, vaultID uuid.UUID, set denomination.Set, draft audit.Draft) (*audit.Record, error) {
	var record *audit.Record
	err := l.observe(draft.Kind, func() error {
		return l.withVaultLock(ctx, vaultID, func(ctx context.Context) error {
			return l.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
				var err error
				record, err = l.mutate(ctx, tx, vaultID, draft, func(inv *vault.Inventory) (denomination.Delta, error) {
					delta := denomination.Diff(set, inv.Denominations)
					if err := inv.Replace(set); err != nil {
						return nil, err
					}
					return delta, nil
				})
				return err
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ReconcileVault records a physical count as the vault's new inventory
func (l *Ledger) ReconcileVault(ctx context.Context, req ReconcileRequest) (*audit.Record, error) {
	if req.Actor == "" {
		return nil, ErrMissingActor
	}
	comment, err := l.policy.Require(req.Comment)
	if err != nil {
		return nil, err
	}
	if err := req.Denominations.Validate(); err != nil {
		return nil, err
	}
	if err := l.checkAccepted(req.Denominations); err != nil {
		return nil, err
	}

	record, err := l.SetAbsolute(ctx, req.VaultID, req.Denominations, audit.Draft{
		Kind:          audit.KindManualReconcile,
		Actor:         req.Actor,
		Reason:        req.Reason,
		Comment:       comment,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("Vault reconciled",
		"vault_id", req.VaultID.String(),
		"variance", record.Variance,
		"actor", req.Actor,
		"correlation_id", req.CorrelationID,
	)
	return record, nil
}

// AddCashArrival adds external cash. A replayed idempotency key returns the original record and false.
func (l *Ledger) AddCashArrival(ctx context.Context, req CashArrivalRequest) (*audit.Record, bool, error) {
	if req.Actor == "" {
		return nil, false, ErrMissingActor
	}
	if !req.Source.IsValid() {
		return nil, false, ErrInvalidSource
	}
	if err := req.Denominations.Validate(); err != nil {
		return nil, false, err
	}
	if req.Denominations.IsEmpty() {
		return nil, false, denomination.ErrEmptySet
	}
	if err := l.checkAccepted(req.Denominations); err != nil {
		return nil, false, err
	}

	if req.IdempotencyKey != "" {
		existing, err := l.audits.GetByIdempotencyKey(ctx, req.VaultID, req.IdempotencyKey)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, audit.ErrRecordNotFound{}) {
			return nil, false, err
		}
	}

	draft := audit.Draft{
		Kind:           audit.KindCashArrival,
		Actor:          req.Actor,
		Reason:         string(req.Source),
		Comment:        l.policy.Optional(req.Notes),
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  req.CorrelationID,
	}

	var record *audit.Record
	created := false
	err := l.observe(draft.Kind, func() error {
		return l.withVaultLock(ctx, req.VaultID, func(ctx context.Context) error {
			return l.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
				// Authoritative replay check, under the vault lock
				if req.IdempotencyKey != "" {
					existing, err := l.audits.WithTx(tx).GetByIdempotencyKey(ctx, req.VaultID, req.IdempotencyKey)
					if err == nil {
						record = existing
						return nil
					}
					if !errors.Is(err, audit.ErrRecordNotFound{}) {
						return err
					}
				}
				var err error
				record, err = l.mutate(ctx, tx, req.VaultID, draft, applyDelta(denomination.FromSet(req.Denominations)))
				created = err == nil
				return err
			})
		})
	})
	if err != nil {
		return nil, false, err
	}
	return record, created, nil
}

// mutation changes a locked inventory and returns the delta it applied
type mutation func(inv *vault.Inventory) (denomination.Delta, error)

func applyDelta(delta denomination.Delta) mutation {
	return func(inv *vault.Inventory) (denomination.Delta, error) {
		if err := inv.Apply(delta); err != nil {
			return nil, err
		}
		return delta, nil
	}
}

// noChange records an action against the vault without touching its inventory
func noChange(*vault.Inventory) (denomination.Delta, error) {
	return denomination.Delta{}, nil
}

// mutate is the single write path for inventories. The caller holds the vault lock and owns tx.
func (l *Ledger) mutate(ctx context.Context, tx pgx.Tx, vaultID uuid.UUID, draft audit.Draft, change mutation) (*audit.Record, error) {
	vaultsTx := l.vaults.WithTx(tx)

	inv, err := vaultsTx.LockForUpdate(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	previous := inv.Balance
	version := inv.Version

	delta, err := change(inv)
	if err != nil {
		return nil, err
	}
	if err := inv.CheckConservation(); err != nil {
		return nil, fmt.Errorf("vault %s: %w", vaultID, err)
	}

	record := audit.NewRecord(draft, vaultID, inv.NextSequence(), previous, inv.Balance, delta)
	if err := l.audits.WithTx(tx).Append(ctx, record); err != nil {
		return nil, err
	}
	if err := vaultsTx.Update(ctx, inv, version); err != nil {
		return nil, err
	}

	message, err := outbox.NewMessage(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode outbox payload for record %s: %w", record.ID, err)
	}
	if err := l.outbox.WithTx(tx).Create(ctx, message); err != nil {
		return nil, err
	}

	l.logger.Info("Vault mutated",
		"vault_id", vaultID.String(),
		"kind", string(draft.Kind),
		"sequence", record.Sequence,
		"previous_balance", previous,
		"new_balance", inv.Balance,
		"correlation_id", draft.CorrelationID,
	)
	l.metrics.SetBalance(vaultID.String(), inv.Balance)
	return record, nil
}

func (l *Ledger) withVaultLock(ctx context.Context, vaultID uuid.UUID, fn func(ctx context.Context) error) error {
	err := l.locker.WithLock(ctx, locking.VaultKey(vaultID), fn)
	if errors.Is(err, locking.ErrLockTimeout) {
		l.metrics.LockTimeout("vault")
		return vault.ErrConcurrentModification{VaultID: vaultID}
	}
	return err
}

// withKeyLock guards shift and collection state that is changed outside any vault lock
func (l *Ledger) withKeyLock(ctx context.Context, key, scope string, fn func(ctx context.Context) error) error {
	err := l.locker.WithLock(ctx, key, fn)
	if errors.Is(err, locking.ErrLockTimeout) {
		l.metrics.LockTimeout(scope)
		return vault.ErrConcurrentModification{Key: key}
	}
	return err
}

func (l *Ledger) observe(kind audit.Kind, fn func() error) error {
	start := time.Now()
	err := fn()
	l.metrics.ObserveMutation(string(kind), outcomeOf(err), time.Since(start))
	return err
}

// checkAccepted rejects face values outside the configured list. An empty list accepts any.
func (l *Ledger) checkAccepted(set denomination.Set) error {
	if len(l.accepted) == 0 {
		return nil
	}
	for face, qty := range set {
		if qty == 0 {
			continue
		}
		found := false
		for _, allowed := range l.accepted {
			if allowed == face {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: face value %d is not accepted", denomination.ErrInvalidDenomination, face)
		}
	}
	return nil
}
