package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	rec.ObserveMutation("COLLECTION_FINALIZE", OutcomeSuccess, 15*time.Millisecond)
	rec.ObserveMutation("COLLECTION_FINALIZE", OutcomeSuccess, 5*time.Millisecond)
	rec.ObserveMutation("MANUAL_RECONCILE", OutcomeRejected, time.Millisecond)
	rec.SetBalance("vault-1", 4950)
	rec.LockTimeout("vault")
	rec.CashDrop(OutcomeSuccess)
	rec.OutboxMessage(OutcomeError)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.mutations.WithLabelValues("COLLECTION_FINALIZE", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.mutations.WithLabelValues("MANUAL_RECONCILE", OutcomeRejected)))
	assert.Equal(t, 4950.0, testutil.ToFloat64(rec.balance.WithLabelValues("vault-1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.lockTimeouts.WithLabelValues("vault")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.cashDrops.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.outboxMessages.WithLabelValues(OutcomeError)))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	assert.NotPanics(t, func() {
		rec.ObserveMutation("x", OutcomeSuccess, time.Second)
		rec.SetBalance("v", 1)
		rec.LockTimeout("vault")
		rec.CashDrop(OutcomeError)
		rec.OutboxMessage(OutcomeSuccess)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)
	rec.SetBalance("vault-1", 40)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `vault_ledger_vault_balance{vault_id="vault-1"} 40`)
}
