package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	OutboxResultPublished = "published"
	OutboxResultRetry     = "retry"
	OutboxResultTerminal  = "terminal"
)

// Outbox counts publisher outcomes per event type.
type Outbox struct {
	events *prometheus.CounterVec
}

func NewOutbox(reg prometheus.Registerer) *Outbox {
	if reg == nil {
		return &Outbox{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vibes_outbox_events_total",
		Help: "Outbox rows handled by the publisher by event type and result.",
	}, []string{"event_type", "result"})
	reg.MustRegister(events)
	return &Outbox{events: events}
}

func (o *Outbox) Observe(eventType, result string) {
	if o == nil || o.events == nil {
		return
	}
	o.events.WithLabelValues(normalizeLabel(eventType), result).Inc()
}
