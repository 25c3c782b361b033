package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		settlementsTotal,
		revenueTotal,
		commissionTotal,
		withdrawalsTotal,
		withdrawnTotal,
		webhookEventsTotal,
		reconciledTotal,
	)
}

var (
	settlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digistore_settlements_total",
			Help: "Purchase transactions settled, by final status.",
		},
		[]string{"status"},
	)

	revenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digistore_revenue_minor_total",
			Help: "Gross value of successful purchases in minor units, by currency.",
		},
		[]string{"currency"},
	)

	commissionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digistore_commission_minor_total",
			Help: "Platform commission earned in minor units, by currency.",
		},
		[]string{"currency"},
	)

	withdrawalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digistore_withdrawals_total",
			Help: "Withdrawal state changes, by resulting status.",
		},
		[]string{"status"},
	)

	withdrawnTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digistore_withdrawn_minor_total",
			Help: "Value paid out to sellers in minor units, by currency.",
		},
		[]string{"currency"},
	)

	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digistore_webhook_events_total",
			Help: "Gateway webhook deliveries, by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	reconciledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digistore_reconciled_total",
			Help: "Stale pending transactions handled by the reconciler, by result.",
		},
		[]string{"result"},
	)
)

func IncSettlement(status string) {
	settlementsTotal.WithLabelValues(norm(status)).Inc()
}

// AddSale records a successful purchase and the platform's cut of it.
func AddSale(currency string, amount, commission int64) {
	revenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
	commissionTotal.WithLabelValues(norm(currency)).Add(float64(commission))
}

func IncWithdrawal(status string) {
	withdrawalsTotal.WithLabelValues(norm(status)).Inc()
}

func AddWithdrawn(currency string, amount int64) {
	withdrawnTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func IncWebhook(provider, outcome string) {
	webhookEventsTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
}

func IncReconciled(result string) {
	reconciledTotal.WithLabelValues(norm(result)).Inc()
}
