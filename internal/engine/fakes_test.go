package engine

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gaming-vault-ledger/internal/config"
	"github.com/gaming-vault-ledger/internal/domain/audit"
	"github.com/gaming-vault-ledger/internal/domain/collection"
	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/gaming-vault-ledger/internal/domain/outbox"
	"github.com/gaming-vault-ledger/internal/domain/shared"
	"github.com/gaming-vault-ledger/internal/domain/shift"
	"github.com/gaming-vault-ledger/internal/domain/vault"
	"github.com/gaming-vault-ledger/internal/platform/locking"
	"github.com/gaming-vault-ledger/internal/platform/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memState is everything a transaction can roll back
type memState struct {
	vaults   map[uuid.UUID]vault.Inventory
	records  []audit.Record
	shifts   map[uuid.UUID]shift.CashierShift
	sessions map[uuid.UUID]collection.Session
	messages []outbox.Message
}

func (s memState) clone() memState {
	out := memState{
		vaults:   make(map[uuid.UUID]vault.Inventory, len(s.vaults)),
		records:  append([]audit.Record(nil), s.records...),
		shifts:   make(map[uuid.UUID]shift.CashierShift, len(s.shifts)),
		sessions: make(map[uuid.UUID]collection.Session, len(s.sessions)),
		messages: append([]outbox.Message(nil), s.messages...),
	}
	for id, inv := range s.vaults {
		inv.Denominations = inv.Denominations.Clone()
		out.vaults[id] = inv
	}
	for id, sh := range s.shifts {
		out.shifts[id] = sh
	}
	for id, sess := range s.sessions {
		sess.Entries = append([]collection.Entry(nil), sess.Entries...)
		out.sessions[id] = sess
	}
	return out
}

// memStore is an in-memory database whose transactions are serialized and roll back on error
type memStore struct {
	mu         sync.Mutex
	txMu       sync.Mutex
	state      memState
	failAppend error
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		vaults:   map[uuid.UUID]vault.Inventory{},
		shifts:   map[uuid.UUID]shift.CashierShift{},
		sessions: map[uuid.UUID]collection.Session{},
	}}
}

func (m *memStore) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.state.clone()
	m.mu.Unlock()

	if err := fn(nil); err != nil {
		m.mu.Lock()
		m.state = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) vault(t *testing.T, id uuid.UUID) vault.Inventory {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.state.vaults[id]
	require.True(t, ok, "vault %s missing", id)
	return inv
}

func (m *memStore) recordsFor(id uuid.UUID) []audit.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Record
	for _, r := range m.state.records {
		if r.VaultID == id {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

func (m *memStore) messageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.messages)
}

type fakeVaults struct{ m *memStore }

func (f fakeVaults) Create(ctx context.Context, inv *vault.Inventory) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, existing := range f.m.state.vaults {
		if existing.LocationID == inv.LocationID {
			return vault.ErrDuplicateLocation{LocationID: inv.LocationID}
		}
	}
	stored := *inv
	stored.Denominations = inv.Denominations.Clone()
	f.m.state.vaults[inv.VaultID] = stored
	return nil
}

func (f fakeVaults) GetByID(ctx context.Context, id uuid.UUID) (*vault.Inventory, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	inv, ok := f.m.state.vaults[id]
	if !ok {
		return nil, vault.ErrVaultNotFound{VaultID: id}
	}
	inv.Denominations = inv.Denominations.Clone()
	return &inv, nil
}

func (f fakeVaults) GetByLocationID(ctx context.Context, locationID string) (*vault.Inventory, error) {
	f.m.mu.Lock()
	var id uuid.UUID
	for vid, inv := range f.m.state.vaults {
		if inv.LocationID == locationID {
			id = vid
		}
	}
	f.m.mu.Unlock()
	if id == uuid.Nil {
		return nil, vault.ErrVaultNotFound{LocationID: locationID}
	}
	return f.GetByID(ctx, id)
}

func (f fakeVaults) Update(ctx context.Context, inv *vault.Inventory, expectedVersion int) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	stored, ok := f.m.state.vaults[inv.VaultID]
	if !ok || stored.Version != expectedVersion {
		return vault.ErrConcurrentModification{VaultID: inv.VaultID}
	}
	inv.Version = expectedVersion + 1
	next := *inv
	next.Denominations = inv.Denominations.Clone()
	f.m.state.vaults[inv.VaultID] = next
	return nil
}

func (f fakeVaults) LockForUpdate(ctx context.Context, id uuid.UUID) (*vault.Inventory, error) {
	return f.GetByID(ctx, id)
}

func (f fakeVaults) WithTx(pgx.Tx) vault.Repository { return f }

type fakeAudits struct{ m *memStore }

func (f fakeAudits) Append(ctx context.Context, record *audit.Record) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	if f.m.failAppend != nil {
		return f.m.failAppend
	}
	for _, r := range f.m.state.records {
		if r.VaultID != record.VaultID {
			continue
		}
		if r.Sequence == record.Sequence {
			return audit.ErrDuplicateRecord{VaultID: r.VaultID, Field: "sequence"}
		}
		if record.IdempotencyKey != "" && r.IdempotencyKey == record.IdempotencyKey {
			return audit.ErrDuplicateRecord{VaultID: r.VaultID, Field: "idempotency_key"}
		}
	}
	f.m.state.records = append(f.m.state.records, *record)
	return nil
}

func (f fakeAudits) GetByID(ctx context.Context, id uuid.UUID) (*audit.Record, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, r := range f.m.state.records {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, audit.ErrRecordNotFound{RecordID: id}
}

func (f fakeAudits) GetByIdempotencyKey(ctx context.Context, vaultID uuid.UUID, key string) (*audit.Record, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, r := range f.m.state.records {
		if r.VaultID == vaultID && r.IdempotencyKey == key {
			return &r, nil
		}
	}
	return nil, audit.ErrRecordNotFound{}
}

func (f fakeAudits) ListByVaultID(ctx context.Context, vaultID uuid.UUID, limit, offset int) ([]*audit.Record, error) {
	records := f.m.recordsFor(vaultID)
	out := []*audit.Record{}
	for i := len(records) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		r := records[i]
		out = append(out, &r)
	}
	return out, nil
}

func (f fakeAudits) WithTx(pgx.Tx) audit.Repository { return f }

type fakeOutbox struct{ m *memStore }

func (f fakeOutbox) Create(ctx context.Context, message *outbox.Message) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	message.ID = int64(len(f.m.state.messages) + 1)
	f.m.state.messages = append(f.m.state.messages, *message)
	return nil
}

func (f fakeOutbox) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var out []*outbox.Message
	for i := range f.m.state.messages {
		if f.m.state.messages[i].Status == shared.OutboxStatusPending && len(out) < limit {
			msg := f.m.state.messages[i]
			out = append(out, &msg)
		}
	}
	return out, nil
}

func (f fakeOutbox) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for i := range f.m.state.messages {
		if f.m.state.messages[i].ID == id {
			f.m.state.messages[i].Status = status
			return nil
		}
	}
	return outbox.ErrMessageNotFound{ID: id}
}

func (f fakeOutbox) IncrementAttempts(ctx context.Context, id int64) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for i := range f.m.state.messages {
		if f.m.state.messages[i].ID == id {
			f.m.state.messages[i].Attempts++
			return nil
		}
	}
	return outbox.ErrMessageNotFound{ID: id}
}

func (f fakeOutbox) GetByRecordID(ctx context.Context, recordID uuid.UUID) (*outbox.Message, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, msg := range f.m.state.messages {
		if msg.RecordID == recordID {
			return &msg, nil
		}
	}
	return nil, outbox.ErrMessageNotFound{}
}

func (f fakeOutbox) WithTx(pgx.Tx) outbox.Repository { return f }

type fakeShifts struct{ m *memStore }

func (f fakeShifts) Create(ctx context.Context, s *shift.CashierShift) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, existing := range f.m.state.shifts {
		if existing.CashierID == s.CashierID && existing.LocationID == s.LocationID && existing.Status != shift.StatusResolved {
			return shift.ErrActiveShiftExists{CashierID: s.CashierID}
		}
	}
	f.m.state.shifts[s.ID] = *s
	return nil
}

func (f fakeShifts) GetByID(ctx context.Context, id uuid.UUID) (*shift.CashierShift, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	s, ok := f.m.state.shifts[id]
	if !ok {
		return nil, shift.ErrShiftNotFound{ShiftID: id}
	}
	return &s, nil
}

func (f fakeShifts) GetActiveByCashier(ctx context.Context, cashierID, locationID string) (*shift.CashierShift, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, s := range f.m.state.shifts {
		if s.CashierID == cashierID && s.LocationID == locationID && s.Status == shift.StatusActive {
			return &s, nil
		}
	}
	return nil, shift.ErrShiftNotFound{CashierID: cashierID}
}

func (f fakeShifts) Update(ctx context.Context, s *shift.CashierShift, expectedVersion int) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	stored, ok := f.m.state.shifts[s.ID]
	if !ok || stored.Version != expectedVersion {
		return vault.ErrConcurrentModification{Key: "shift:" + s.ID.String()}
	}
	s.Version = expectedVersion + 1
	f.m.state.shifts[s.ID] = *s
	return nil
}

func (f fakeShifts) LockForUpdate(ctx context.Context, id uuid.UUID) (*shift.CashierShift, error) {
	return f.GetByID(ctx, id)
}

func (f fakeShifts) WithTx(pgx.Tx) shift.Repository { return f }

type fakeSessions struct{ m *memStore }

func (f fakeSessions) Create(ctx context.Context, s *collection.Session) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, existing := range f.m.state.sessions {
		if existing.LocationID == s.LocationID && existing.VaultShiftID == s.VaultShiftID && existing.Status == collection.StatusOpen {
			return collection.ErrOpenSessionExists{LocationID: s.LocationID, VaultShiftID: s.VaultShiftID}
		}
	}
	stored := *s
	stored.Entries = append([]collection.Entry(nil), s.Entries...)
	f.m.state.sessions[s.ID] = stored
	return nil
}

func (f fakeSessions) GetByID(ctx context.Context, id uuid.UUID) (*collection.Session, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	s, ok := f.m.state.sessions[id]
	if !ok {
		return nil, collection.ErrSessionNotFound{SessionID: id}
	}
	s.Entries = append([]collection.Entry{}, s.Entries...)
	return &s, nil
}

func (f fakeSessions) GetOpenByKey(ctx context.Context, locationID, vaultShiftID string) (*collection.Session, error) {
	f.m.mu.Lock()
	var id uuid.UUID
	for sid, s := range f.m.state.sessions {
		if s.LocationID == locationID && s.VaultShiftID == vaultShiftID && s.Status == collection.StatusOpen {
			id = sid
		}
	}
	f.m.mu.Unlock()
	if id == uuid.Nil {
		return nil, collection.ErrSessionNotFound{}
	}
	return f.GetByID(ctx, id)
}

func (f fakeSessions) LockForUpdate(ctx context.Context, id uuid.UUID) (*collection.Session, error) {
	return f.GetByID(ctx, id)
}

func (f fakeSessions) AddEntry(ctx context.Context, sessionID uuid.UUID, entry collection.Entry) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	s := f.m.state.sessions[sessionID]
	for _, e := range s.Entries {
		if e.MachineID == entry.MachineID {
			return collection.ErrDuplicateMachine{SessionID: sessionID, MachineID: entry.MachineID}
		}
	}
	s.Entries = append(append([]collection.Entry(nil), s.Entries...), entry)
	f.m.state.sessions[sessionID] = s
	return nil
}

func (f fakeSessions) RemoveEntry(ctx context.Context, sessionID uuid.UUID, machineID string) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	s := f.m.state.sessions[sessionID]
	kept := []collection.Entry{}
	for _, e := range s.Entries {
		if e.MachineID != machineID {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(s.Entries) {
		return collection.ErrEntryNotFound{SessionID: sessionID, MachineID: machineID}
	}
	s.Entries = kept
	f.m.state.sessions[sessionID] = s
	return nil
}

func (f fakeSessions) Update(ctx context.Context, s *collection.Session, expectedVersion int) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	stored, ok := f.m.state.sessions[s.ID]
	if !ok || stored.Version != expectedVersion {
		return vault.ErrConcurrentModification{Key: "collection:" + s.ID.String()}
	}
	s.Version = expectedVersion + 1
	stored.Status = s.Status
	stored.RecordID = s.RecordID
	stored.FinalizedBy = s.FinalizedBy
	stored.FinalizedAt = s.FinalizedAt
	stored.Version = s.Version
	stored.UpdatedAt = s.UpdatedAt
	f.m.state.sessions[s.ID] = stored
	return nil
}

func (f fakeSessions) WithTx(pgx.Tx) collection.Repository { return f }

// timeoutLocker never grants a lock
type timeoutLocker struct{}

func (timeoutLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return locking.ErrLockTimeout
}

// recordingLocker grants every lock and remembers the order keys were taken in
type recordingLocker struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.mu.Unlock()
	return fn(ctx)
}

func (r *recordingLocker) taken() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func (r *recordingLocker) reset() {
	r.mu.Lock()
	r.keys = nil
	r.mu.Unlock()
}

// staleReadSessions misses the open session on the first lookup, as a replica that read before a rival insert would
type staleReadSessions struct {
	fakeSessions
	rival  *collection.Session
	missed bool
}

func (f *staleReadSessions) GetOpenByKey(ctx context.Context, locationID, vaultShiftID string) (*collection.Session, error) {
	if !f.missed {
		f.missed = true
		if err := f.fakeSessions.Create(ctx, f.rival); err != nil {
			return nil, err
		}
		return nil, collection.ErrSessionNotFound{}
	}
	return f.fakeSessions.GetOpenByKey(ctx, locationID, vaultShiftID)
}

var acceptedFaces = []int64{100, 50, 20, 10, 5, 1}

type harness struct {
	store       *memStore
	registry    *prometheus.Registry
	ledger      *Ledger
	shifts      *ShiftService
	collections *CollectionService
}

func newHarness(t *testing.T, locker locking.Locker) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if locker == nil {
		locker = locking.NewLocalLocker(logger, 2*time.Second)
	}
	store := newMemStore()
	registry := prometheus.NewRegistry()
	ledger := NewLedger(logger, store, locker,
		fakeVaults{store}, fakeAudits{store}, fakeOutbox{store},
		config.EngineConfig{CommentMinLength: 10, AcceptedDenominations: acceptedFaces},
		metrics.NewRecorder(registry),
	)
	return &harness{
		store:       store,
		registry:    registry,
		ledger:      ledger,
		shifts:      NewShiftService(logger, ledger, fakeShifts{store}),
		collections: NewCollectionService(logger, ledger, fakeSessions{store}),
	}
}

// provision creates a vault for location and stocks it through a cash arrival
func (h *harness) provision(t *testing.T, locationID string, stock denomination.Set) uuid.UUID {
	t.Helper()
	inv, err := h.ledger.ProvisionVault(context.Background(), locationID)
	require.NoError(t, err)
	if !stock.IsEmpty() {
		_, _, err = h.ledger.AddCashArrival(context.Background(), CashArrivalRequest{
			VaultID:       inv.VaultID,
			Source:        shared.ArrivalSourceOwnerInjection,
			Denominations: stock,
			Actor:         "owner",
		})
		require.NoError(t, err)
	}
	return inv.VaultID
}

// assertLedgerConsistent checks conservation, contiguous sequences and one outbox message per record
func (h *harness) assertLedgerConsistent(t *testing.T, vaultID uuid.UUID) {
	t.Helper()
	inv := h.store.vault(t, vaultID)
	assert.Equal(t, inv.Denominations.Total(), inv.Balance, "balance must equal denomination total")

	records := h.store.recordsFor(vaultID)
	var running int64
	for i, r := range records {
		assert.Equal(t, int64(i+1), r.Sequence, "sequences must be contiguous")
		assert.Equal(t, running, r.PreviousBalance, "record %d must start where the previous ended", r.Sequence)
		assert.Equal(t, r.NewBalance-r.PreviousBalance, r.Variance)
		assert.Equal(t, r.Variance, r.DenominationDelta.Total(), "variance must equal the delta's value")
		running = r.NewBalance
	}
	assert.Equal(t, inv.Balance, running, "replaying the trail must reproduce the balance")
	assert.Equal(t, int64(len(records)), inv.AuditSequence)

	for face, qty := range inv.Denominations {
		assert.GreaterOrEqual(t, qty, int64(0), "face value %d went negative", face)
	}
}

func (h *harness) mutationCount(t *testing.T, kind, outcome string) float64 {
	t.Helper()
	families, err := h.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "vault_ledger_vault_mutations_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["kind"] == kind && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
