// Package metrics exposes the ledger's Prometheus instruments.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vault_ledger"

// Outcomes used as label values
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeConflict = "conflict"
)

// Recorder holds the instruments. A nil Recorder records nothing.
type Recorder struct {
	mutations      *prometheus.CounterVec
	mutationTime   *prometheus.HistogramVec
	balance        *prometheus.GaugeVec
	lockTimeouts   *prometheus.CounterVec
	cashDrops      *prometheus.CounterVec
	outboxMessages *prometheus.CounterVec
}

// NewRecorder registers every instrument with reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		// Labels: kind (audit record kind), outcome
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "mutations_total",
			Help:      "Vault mutations by record kind and outcome",
		}, []string{"kind", "outcome"}),

		mutationTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "mutation_duration_seconds",
			Help:      "Time spent holding locks and committing a vault mutation",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"kind"}),

		// Labels: vault_id
		balance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "balance",
			Help:      "Last committed vault balance in face-value units",
		}, []string{"vault_id"}),

		// Labels: scope (vault, shift, session)
		lockTimeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "locking",
			Name:      "timeouts_total",
			Help:      "Lock acquisitions that gave up and reported a concurrent modification",
		}, []string{"scope"}),

		cashDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "cash_drops_total",
			Help:      "Machine cash drops consumed by outcome",
		}, []string{"outcome"}),

		outboxMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "messages_total",
			Help:      "Outbox messages handled by the poller by outcome",
		}, []string{"outcome"}),
	}
}

func (r *Recorder) ObserveMutation(kind, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.mutations.WithLabelValues(kind, outcome).Inc()
	r.mutationTime.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (r *Recorder) SetBalance(vaultID string, balance int64) {
	if r == nil {
		return
	}
	r.balance.WithLabelValues(vaultID).Set(float64(balance))
}

func (r *Recorder) LockTimeout(scope string) {
	if r == nil {
		return
	}
	r.lockTimeouts.WithLabelValues(scope).Inc()
}

func (r *Recorder) CashDrop(outcome string) {
	if r == nil {
		return
	}
	r.cashDrops.WithLabelValues(outcome).Inc()
}

func (r *Recorder) OutboxMessage(outcome string) {
	if r == nil {
		return
	}
	r.outboxMessages.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
