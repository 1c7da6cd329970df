package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DepositsTotal counts deposit operations by outcome
	DepositsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_deposits_total",
			Help: "Total number of deposit operations",
		},
		[]string{"status"},
	)

	// SettlementsTotal counts claim and refund operations by kind and outcome
	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_settlements_total",
			Help: "Total number of settlement operations",
		},
		[]string{"kind", "status"},
	)

	// SettlementDuration tracks settlement processing time
	SettlementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "escrow_settlement_duration_seconds",
			Help:    "Settlement processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// SettledAmount tracks settled value in base units
	SettledAmount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "escrow_settled_amount",
			Help:    "Settled value per operation in base units",
			Buckets: []float64{1e3, 1e6, 1e9, 1e12, 1e15, 1e18, 1e21},
		},
		[]string{"kind"},
	)

	// FeesCollected accumulates fee value routed to the collector
	FeesCollected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "escrow_fees_collected_total",
			Help: "Total fee value routed to the fee collector in base units",
		},
	)

	// AdminOpsTotal counts privileged configuration mutations
	AdminOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_admin_ops_total",
			Help: "Total number of privileged configuration operations",
		},
		[]string{"op", "status"},
	)
)
