package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func init() {
	register(
		settlementsTotal,
		revenueTotal,
		persistenceFailuresTotal,
	)
}

var (
	settlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smm_settlements_total",
			Help: "Purchase attempts by outcome (committed, rolled_back, insufficient_funds, ...).",
		},
		[]string{"outcome"},
	)

	revenueTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smm_revenue_total",
			Help: "Sum of charges of committed orders.",
		},
	)

	persistenceFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smm_persistence_failures_total",
			Help: "Writes that could not be made durable, by operation.",
		},
		[]string{"op"},
	)
)

func IncSettlement(outcome string) {
	settlementsTotal.WithLabelValues(norm(outcome)).Inc()
}

func AddRevenue(amount decimal.Decimal) {
	revenueTotal.Add(amount.InexactFloat64())
}

func IncPersistenceFailure(op string) {
	persistenceFailuresTotal.WithLabelValues(norm(op)).Inc()
}
