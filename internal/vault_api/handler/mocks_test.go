package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gaming-vault-ledger/internal/domain/audit"
	"github.com/gaming-vault-ledger/internal/domain/collection"
	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/gaming-vault-ledger/internal/domain/shift"
	"github.com/gaming-vault-ledger/internal/domain/vault"
	"github.com/gaming-vault-ledger/internal/engine"
	"github.com/gaming-vault-ledger/internal/vault_api/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockVaultLedger struct {
	mock.Mock
}

func (m *MockVaultLedger) ProvisionVault(ctx context.Context, locationID string) (*vault.Inventory, error) {
	args := m.Called(ctx, locationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*vault.Inventory), args.Error(1)
}

func (m *MockVaultLedger) GetVaultBalance(ctx context.Context, vaultID uuid.UUID) (vault.Snapshot, error) {
	args := m.Called(ctx, vaultID)
	return args.Get(0).(vault.Snapshot), args.Error(1)
}

func (m *MockVaultLedger) ListAuditRecords(ctx context.Context, vaultID uuid.UUID, limit, offset int) ([]*audit.Record, error) {
	args := m.Called(ctx, vaultID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Record), args.Error(1)
}

func (m *MockVaultLedger) AdjustVault(ctx context.Context, req engine.AdjustRequest) (*audit.Record, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*audit.Record), args.Error(1)
}

func (m *MockVaultLedger) ReconcileVault(ctx context.Context, req engine.ReconcileRequest) (*audit.Record, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*audit.Record), args.Error(1)
}

func (m *MockVaultLedger) AddCashArrival(ctx context.Context, req engine.CashArrivalRequest) (*audit.Record, bool, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*audit.Record), args.Bool(1), args.Error(2)
}

type MockAuditHistory struct {
	mock.Mock
}

func (m *MockAuditHistory) GetVaultAudit(ctx context.Context, vaultID uuid.UUID, page, perPage int) ([]*audit.Record, int64, error) {
	args := m.Called(ctx, vaultID, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*audit.Record), args.Get(1).(int64), args.Error(2)
}

type MockShiftReconciler struct {
	mock.Mock
}

func (m *MockShiftReconciler) OpenShift(ctx context.Context, req engine.OpenShiftRequest) (*shift.CashierShift, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shift.CashierShift), args.Error(1)
}

func (m *MockShiftReconciler) GetShift(ctx context.Context, shiftID uuid.UUID) (*shift.CashierShift, error) {
	args := m.Called(ctx, shiftID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shift.CashierShift), args.Error(1)
}

func (m *MockShiftReconciler) RecordShiftTransaction(ctx context.Context, shiftID uuid.UUID, amount int64) (*shift.CashierShift, error) {
	args := m.Called(ctx, shiftID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shift.CashierShift), args.Error(1)
}

func (m *MockShiftReconciler) CloseShift(ctx context.Context, shiftID uuid.UUID, count denomination.CashCount, actor string) (shift.UnbalancedShiftInfo, error) {
	args := m.Called(ctx, shiftID, count, actor)
	return args.Get(0).(shift.UnbalancedShiftInfo), args.Error(1)
}

func (m *MockShiftReconciler) ForceCloseShift(ctx context.Context, req engine.ForceCloseRequest) (shift.UnbalancedShiftInfo, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(shift.UnbalancedShiftInfo), args.Error(1)
}

func (m *MockShiftReconciler) ResolveShift(ctx context.Context, req engine.ResolveRequest) (*audit.Record, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*audit.Record), args.Error(1)
}

func (m *MockShiftReconciler) RejectShift(ctx context.Context, req engine.RejectRequest) (*shift.CashierShift, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shift.CashierShift), args.Error(1)
}

type MockCollectionAggregator struct {
	mock.Mock
}

func (m *MockCollectionAggregator) StartOrGetSession(ctx context.Context, locationID, vaultShiftID string) (*collection.Session, error) {
	args := m.Called(ctx, locationID, vaultShiftID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*collection.Session), args.Error(1)
}

func (m *MockCollectionAggregator) GetSession(ctx context.Context, sessionID uuid.UUID) (*collection.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*collection.Session), args.Error(1)
}

func (m *MockCollectionAggregator) AddEntry(ctx context.Context, sessionID uuid.UUID, req engine.EntryRequest) (*collection.Session, error) {
	args := m.Called(ctx, sessionID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*collection.Session), args.Error(1)
}

func (m *MockCollectionAggregator) RemoveEntry(ctx context.Context, sessionID uuid.UUID, machineID string) (*collection.Session, error) {
	args := m.Called(ctx, sessionID, machineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*collection.Session), args.Error(1)
}

func (m *MockCollectionAggregator) Finalize(ctx context.Context, sessionID uuid.UUID, actor, correlationID string) (collection.FinalizeResult, error) {
	args := m.Called(ctx, sessionID, actor, correlationID)
	return args.Get(0).(collection.FinalizeResult), args.Error(1)
}

// testResponse decodes the envelope keeping data raw
type testResponse struct {
	Data          json.RawMessage `json:"data"`
	Error         *ErrorInfo      `json:"error"`
	CorrelationID string          `json:"correlation_id"`
	Meta          *MetaInfo       `json:"meta"`
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.CorrelationID(), middleware.Actor())
	return router
}

// do sends body as JSON with an actor header and decodes the envelope
func do(t *testing.T, router *gin.Engine, method, path, actor string, body any) (*httptest.ResponseRecorder, testResponse) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(middleware.ActorIDHeader, actor)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var resp testResponse
	if rr.Code != http.StatusNoContent {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	}
	return rr, resp
}
