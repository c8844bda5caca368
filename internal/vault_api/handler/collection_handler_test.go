package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gaming-vault-ledger/internal/domain/collection"
	"github.com/gaming-vault-ledger/internal/domain/denomination"
	"github.com/gaming-vault-ledger/internal/engine"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func collectionRouter(collections *MockCollectionAggregator) *gin.Engine {
	h := NewCollectionHandler(testLogger(), collections)
	router := newTestRouter()
	router.POST("/collections", h.StartOrGet)
	router.GET("/collections/:id", h.Get)
	router.POST("/collections/:id/entries", h.AddEntry)
	router.DELETE("/collections/:id/entries/:machineId", h.RemoveEntry)
	router.POST("/collections/:id/finalize", h.Finalize)
	return router
}

func TestCollectionHandler_StartOrGet(t *testing.T) {
	collections := new(MockCollectionAggregator)
	session, err := collection.NewSession("casino-floor-1", "vault-shift-9")
	require.NoError(t, err)
	collections.On("StartOrGetSession", mock.Anything, "casino-floor-1", "vault-shift-9").Return(session, nil).Twice()

	router := collectionRouter(collections)
	body := StartCollectionRequest{LocationID: "casino-floor-1", VaultShiftID: "vault-shift-9"}

	var ids []uuid.UUID
	for i := 0; i < 2; i++ {
		rr, resp := do(t, router, http.MethodPost, "/collections", "", body)
		require.Equal(t, http.StatusOK, rr.Code)
		var out collection.Session
		require.NoError(t, json.Unmarshal(resp.Data, &out))
		ids = append(ids, out.ID)
	}
	assert.Equal(t, ids[0], ids[1])

	rr, _ := do(t, router, http.MethodPost, "/collections", "", StartCollectionRequest{LocationID: "casino-floor-1"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCollectionHandler_AddEntry(t *testing.T) {
	sessionID := uuid.New()
	total := int64(235)

	t.Run("Added", func(t *testing.T) {
		collections := new(MockCollectionAggregator)
		collections.On("AddEntry", mock.Anything, sessionID, mock.MatchedBy(func(req engine.EntryRequest) bool {
			return req.MachineID == "slot-7" &&
				req.Denominations.Equal(denomination.Set{100: 2, 20: 1, 5: 3}) &&
				req.TotalAmount != nil && *req.TotalAmount == 235
		})).Return(&collection.Session{ID: sessionID, Status: collection.StatusOpen}, nil).Once()

		body := CollectionEntryRequest{
			MachineID:     "slot-7",
			Denominations: []denomination.Denomination{{FaceValue: 100, Quantity: 2}, {FaceValue: 20, Quantity: 1}, {FaceValue: 5, Quantity: 3}},
			TotalAmount:   &total,
		}
		rr, _ := do(t, collectionRouter(collections), http.MethodPost, "/collections/"+sessionID.String()+"/entries", "", body)
		assert.Equal(t, http.StatusCreated, rr.Code)
		collections.AssertExpectations(t)
	})

	t.Run("DuplicateMachine", func(t *testing.T) {
		collections := new(MockCollectionAggregator)
		collections.On("AddEntry", mock.Anything, sessionID, mock.Anything).Return(nil, collection.ErrDuplicateMachine{MachineID: "slot-7"}).Once()

		body := CollectionEntryRequest{MachineID: "slot-7", Denominations: []denomination.Denomination{{FaceValue: 20, Quantity: 1}}}
		rr, resp := do(t, collectionRouter(collections), http.MethodPost, "/collections/"+sessionID.String()+"/entries", "", body)

		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "DUPLICATE_MACHINE", resp.Error.Code)
	})

	t.Run("TotalMismatch", func(t *testing.T) {
		collections := new(MockCollectionAggregator)
		collections.On("AddEntry", mock.Anything, sessionID, mock.Anything).Return(nil, collection.ErrEntryTotalMismatch).Once()

		wrong := int64(300)
		body := CollectionEntryRequest{MachineID: "slot-8", Denominations: []denomination.Denomination{{FaceValue: 20, Quantity: 1}}, TotalAmount: &wrong}
		rr, resp := do(t, collectionRouter(collections), http.MethodPost, "/collections/"+sessionID.String()+"/entries", "", body)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "ENTRY_TOTAL_MISMATCH", resp.Error.Code)
	})
}

func TestCollectionHandler_RemoveEntry(t *testing.T) {
	sessionID := uuid.New()

	collections := new(MockCollectionAggregator)
	collections.On("RemoveEntry", mock.Anything, sessionID, "slot-7").Return(&collection.Session{ID: sessionID}, nil).Once()
	collections.On("RemoveEntry", mock.Anything, sessionID, "slot-404").Return(nil, collection.ErrEntryNotFound{MachineID: "slot-404"}).Once()

	router := collectionRouter(collections)
	rr, _ := do(t, router, http.MethodDelete, "/collections/"+sessionID.String()+"/entries/slot-7", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, resp := do(t, router, http.MethodDelete, "/collections/"+sessionID.String()+"/entries/slot-404", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "ENTRY_NOT_FOUND", resp.Error.Code)
}

func TestCollectionHandler_Finalize(t *testing.T) {
	sessionID := uuid.New()

	t.Run("Committed", func(t *testing.T) {
		collections := new(MockCollectionAggregator)
		result := collection.FinalizeResult{SessionID: sessionID, TotalCollected: 235, EntryCount: 2, RecordID: uuid.New()}
		collections.On("Finalize", mock.Anything, sessionID, "manager-1", mock.AnythingOfType("string")).Return(result, nil).Once()

		rr, resp := do(t, collectionRouter(collections), http.MethodPost, "/collections/"+sessionID.String()+"/finalize", "manager-1", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		var out collection.FinalizeResult
		require.NoError(t, json.Unmarshal(resp.Data, &out))
		assert.Equal(t, int64(235), out.TotalCollected)
	})

	t.Run("SecondFinalize", func(t *testing.T) {
		collections := new(MockCollectionAggregator)
		collections.On("Finalize", mock.Anything, sessionID, "manager-1", mock.Anything).
			Return(collection.FinalizeResult{}, collection.ErrAlreadyFinalized{SessionID: sessionID}).Once()

		rr, resp := do(t, collectionRouter(collections), http.MethodPost, "/collections/"+sessionID.String()+"/finalize", "manager-1", nil)
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "ALREADY_FINALIZED", resp.Error.Code)
	})

	t.Run("EmptySession", func(t *testing.T) {
		collections := new(MockCollectionAggregator)
		collections.On("Finalize", mock.Anything, sessionID, "manager-1", mock.Anything).
			Return(collection.FinalizeResult{}, collection.ErrEmptySession{SessionID: sessionID}).Once()

		rr, resp := do(t, collectionRouter(collections), http.MethodPost, "/collections/"+sessionID.String()+"/finalize", "manager-1", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Equal(t, "EMPTY_SESSION", resp.Error.Code)
	})
}
