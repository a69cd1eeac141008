package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func init() {
	register(
		invoicesTotal,
		topupAmountTotal,
	)
}

var (
	invoicesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smm_invoices_total",
			Help: "Invoices by status transition (created/paid/duplicate).",
		},
		[]string{"status"},
	)

	topupAmountTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smm_topup_amount_total",
			Help: "The total value credited through confirmed invoices.",
		},
	)
)

func IncInvoice(status string) {
	invoicesTotal.WithLabelValues(norm(status)).Inc()
}

func AddTopupAmount(amount decimal.Decimal) {
	topupAmountTotal.Add(amount.InexactFloat64())
}
