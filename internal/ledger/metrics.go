package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Funding ledger operations by outcome",
		},
		[]string{"op", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of funding ledger operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"op"},
	)

	conflictRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_conflict_retries_total",
			Help: "Units of work retried after a storage conflict",
		},
		[]string{"op"},
	)

	donatedAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_donated_amount_total",
			Help: "Sum of accepted donation amounts",
		},
	)

	driftedNeeds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_reconcile_drifted_needs",
			Help: "Needs whose current amount disagreed with their donations at the last reconciliation",
		},
	)
)

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = errorKind(err)
	}
	operationsTotal.WithLabelValues(op, result).Inc()
}
