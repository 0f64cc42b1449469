package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics counts outbox publish outcomes per event type. A nil
// *OutboxMetrics is valid and records nothing.
type OutboxMetrics struct {
	published    *prometheus.CounterVec
	retried      *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return nil
	}
	vec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      name,
			Help:      help,
		}, labels)
	}
	m := &OutboxMetrics{
		published:    vec("published_total", "Outbox events delivered to Pub/Sub.", "event_type"),
		retried:      vec("publish_failures_total", "Publish attempts that failed and will be retried.", "event_type"),
		deadLettered: vec("dead_lettered_total", "Outbox events moved to the DLQ.", "event_type", "reason"),
	}
	reg.MustRegister(m.published, m.retried, m.deadLettered)
	return m
}

func (m *OutboxMetrics) IncPublished(eventType string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(eventType).Inc()
}

func (m *OutboxMetrics) IncRetry(eventType string) {
	if m == nil {
		return
	}
	m.retried.WithLabelValues(eventType).Inc()
}

func (m *OutboxMetrics) IncDeadLettered(eventType, reason string) {
	if m == nil {
		return
	}
	m.deadLettered.WithLabelValues(eventType, reason).Inc()
}
