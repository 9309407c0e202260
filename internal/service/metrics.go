package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deco_ledger_calls_total",
		Help: "Ledger calls processed, labeled by method and outcome",
	}, []string{"method", "outcome"})

	ledgerCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deco_ledger_call_duration_seconds",
		Help:    "Latency of ledger calls including store commit",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method"})

	ledgerConflictRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deco_ledger_conflict_retries_total",
		Help: "Store write conflicts that caused a ledger call to be retried",
	}, []string{"method"})
)

const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)
