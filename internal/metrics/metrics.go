package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the fulfillment coordination paths.
var (
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Accepted order status transitions by target status",
		},
		[]string{"to"},
	)

	TransitionsRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "order_transitions_rejected_total",
			Help: "Order status transitions rejected by the state machine",
		},
	)

	ClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_claims_total",
			Help: "Rider claim attempts by outcome (won, lost)",
		},
		[]string{"outcome"},
	)

	CodeVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_code_checks_total",
			Help: "Verification code checks by result",
		},
		[]string{"result"},
	)

	PaymentInitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_inits_total",
			Help: "Payment intent initializations by outcome (gateway, cached, conflict, error)",
		},
		[]string{"outcome"},
	)

	WebhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhooks_total",
			Help: "Payment webhook deliveries by disposition (settled, replayed, rejected)",
		},
		[]string{"disposition"},
	)
)

// Register registers all Prometheus metrics.
func Register() {
	prometheus.MustRegister(TransitionsTotal)
	prometheus.MustRegister(TransitionsRejectedTotal)
	prometheus.MustRegister(ClaimsTotal)
	prometheus.MustRegister(CodeVerificationsTotal)
	prometheus.MustRegister(PaymentInitsTotal)
	prometheus.MustRegister(WebhooksTotal)
}
