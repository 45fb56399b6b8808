package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Payments tracks settlement, webhook, and coin queue activity.
type Payments struct {
	settlements   *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
	coinActions   *prometheus.CounterVec
	locksReleased *prometheus.CounterVec
	orphaned      prometheus.Gauge
}

// NewPayments registers the payment metrics. A nil registerer yields a no-op recorder.
func NewPayments(reg prometheus.Registerer) *Payments {
	if reg == nil {
		return &Payments{}
	}
	p := &Payments{
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vibes_order_group_settlements_total",
			Help: "Order group settlement attempts by item type and result.",
		}, []string{"item_type", "result"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vibes_stripe_webhook_events_total",
			Help: "Stripe webhook deliveries by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		coinActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vibes_coin_actions_total",
			Help: "Processed coin action queue rows by action and result.",
		}, []string{"action", "result"}),
		locksReleased: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vibes_inventory_locks_released_total",
			Help: "Lock rows released by the expiry sweep, per scope.",
		}, []string{"scope"}),
		orphaned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vibes_orphaned_payment_transactions",
			Help: "Payment transactions stuck in created past the orphan timeout.",
		}),
	}
	reg.MustRegister(p.settlements, p.webhookEvents, p.coinActions, p.locksReleased, p.orphaned)
	return p
}

func (p *Payments) Settlement(itemType, result string) {
	if p == nil || p.settlements == nil {
		return
	}
	p.settlements.WithLabelValues(normalizeLabel(itemType), result).Inc()
}

func (p *Payments) WebhookEvent(eventType, outcome string) {
	if p == nil || p.webhookEvents == nil {
		return
	}
	p.webhookEvents.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

func (p *Payments) CoinAction(action, result string) {
	if p == nil || p.coinActions == nil {
		return
	}
	p.coinActions.WithLabelValues(normalizeLabel(action), result).Inc()
}

func (p *Payments) LocksReleased(scope string, n int64) {
	if p == nil || p.locksReleased == nil || n <= 0 {
		return
	}
	p.locksReleased.WithLabelValues(normalizeLabel(scope)).Add(float64(n))
}

func (p *Payments) SetOrphaned(n int) {
	if p == nil || p.orphaned == nil {
		return
	}
	p.orphaned.Set(float64(n))
}
