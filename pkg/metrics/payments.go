package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics tracks the settlement pipeline.
type PaymentMetrics struct {
	confirmations  *prometheus.CounterVec
	webhookEvents  *prometheus.CounterVec
	reconciliation *prometheus.CounterVec
	inconsistent   prometheus.Counter
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	confirmations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_confirmations_total",
		Help: "Payment confirmations by result.",
	}, []string{"result"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_webhook_events_total",
		Help: "Stripe webhook events by type and outcome.",
	}, []string{"type", "outcome"})
	reconciliation := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_reconciliation_outcomes_total",
		Help: "Pending payment reconciliation outcomes.",
	}, []string{"outcome"})
	inconsistent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payments_inconsistent_transactions_total",
		Help: "Transactions whose ledger credit committed but whose status update failed.",
	})
	reg.MustRegister(confirmations, webhookEvents, reconciliation, inconsistent)
	return &PaymentMetrics{
		confirmations:  confirmations,
		webhookEvents:  webhookEvents,
		reconciliation: reconciliation,
		inconsistent:   inconsistent,
	}
}

func (p *PaymentMetrics) IncConfirmation(result string) {
	if p == nil || p.confirmations == nil {
		return
	}
	p.confirmations.WithLabelValues(normalizeLabel(result)).Inc()
}

func (p *PaymentMetrics) IncWebhookEvent(eventType, outcome string) {
	if p == nil || p.webhookEvents == nil {
		return
	}
	p.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (p *PaymentMetrics) IncReconciliation(outcome string) {
	if p == nil || p.reconciliation == nil {
		return
	}
	p.reconciliation.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (p *PaymentMetrics) IncInconsistent() {
	if p == nil || p.inconsistent == nil {
		return
	}
	p.inconsistent.Inc()
}
