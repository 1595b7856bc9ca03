package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"cashback-ledger/internal/domain"
)

const (
	OpAccumulate = "accumulate"
	OpRedeem     = "redeem"
	OpReverse    = "reverse"
	OpExpire     = "expire"

	ResultOK    = "ok"
	ResultError = "error"
)

// LedgerMetrics are the Prometheus series of the cashback ledger.
type LedgerMetrics struct {
	OperationsTotal      *prometheus.CounterVec
	AmountCentsTotal     *prometheus.CounterVec
	OperationDuration    *prometheus.HistogramVec
	InteractionsCanceled prometheus.Counter
	NegativeBalances     prometheus.Counter
	EventsPublishFailed  prometheus.Counter
}

// NewLedgerMetrics registers the series on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	f := promauto.With(reg)
	return &LedgerMetrics{
		OperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashback_operations_total",
				Help: "Ledger operations by type and outcome",
			},
			[]string{"operation", "result", "error_kind"},
		),
		AmountCentsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashback_amount_cents_total",
				Help: "Cashback moved by ledger operations, in cents",
			},
			[]string{"operation"},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cashback_operation_duration_seconds",
				Help:    "Time spent in a ledger operation including its database transaction",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		InteractionsCanceled: f.NewCounter(prometheus.CounterOpts{
			Name: "cashback_interactions_canceled_total",
			Help: "Pending scheduled interactions deleted by sale reversals",
		}),
		NegativeBalances: f.NewCounter(prometheus.CounterOpts{
			Name: "cashback_negative_balances_total",
			Help: "Reversals that left a balance below zero",
		}),
		EventsPublishFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "cashback_events_publish_failed_total",
			Help: "Ledger events that could not be published",
		}),
	}
}

// Observe records one finished operation. amount is only counted on success.
func (m *LedgerMetrics) Observe(operation string, started time.Time, amount int64, err error) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	if err != nil {
		m.OperationsTotal.WithLabelValues(operation, ResultError, string(domain.KindOf(err))).Inc()
		return
	}
	m.OperationsTotal.WithLabelValues(operation, ResultOK, "").Inc()
	if amount > 0 {
		m.AmountCentsTotal.WithLabelValues(operation).Add(float64(amount))
	}
}
