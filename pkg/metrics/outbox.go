package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts publisher dispositions per event type.
type OutboxMetrics struct {
	dispositions *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox publisher metrics.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	dispositions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_total",
		Help: "Outbox rows handled by the publisher, by event type and disposition.",
	}, []string{"event_type", "disposition"})
	reg.MustRegister(dispositions)
	return &OutboxMetrics{dispositions: dispositions}
}

func (o *OutboxMetrics) IncDisposition(eventType, disposition string) {
	if o == nil || o.dispositions == nil {
		return
	}
	o.dispositions.WithLabelValues(normalizeLabel(eventType), normalizeLabel(disposition)).Inc()
}
