package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentRequestsTotal,
		paymentChecksTotal,
		paymentOutcomesTotal,
		paymentRevenueTotal,
		paymentChecksInFlight,
	)
}

var (
	paymentRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_requests_total",
			Help: "Payment codes requested by payers, by currency and result (issued|invalid|failed).",
		},
		[]string{"currency", "result"},
	)

	// result: paid|unpaid|error
	paymentChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_checks_total",
			Help: "Individual status checks against the payment backend.",
		},
		[]string{"result"},
	)

	paymentOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_outcomes_total",
			Help: "Payment checks settled, by final status (paid|expired).",
		},
		[]string{"status"},
	)

	paymentRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_revenue_minor_total",
			Help: "Settled revenue in minor units, labeled by currency.",
		},
		[]string{"currency"},
	)

	paymentChecksInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "payment_checks_in_flight",
			Help: "Payment checks currently scheduled for a re-check.",
		},
	)
)

func IncPaymentRequest(currency, result string) {
	paymentRequestsTotal.WithLabelValues(norm(currency), norm(result)).Inc()
}

func IncPaymentCheck(result string) {
	paymentChecksTotal.WithLabelValues(norm(result)).Inc()
}

func IncPaymentOutcome(status string) {
	paymentOutcomesTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(currency string, minor int64) {
	paymentRevenueTotal.WithLabelValues(norm(currency)).Add(float64(minor))
}

func SetChecksInFlight(n int) {
	paymentChecksInFlight.Set(float64(n))
}
