package metrics

import "github.com/prometheus/client_golang/prometheus"

// CommerceMetrics counts checkout and payment outcomes.
type CommerceMetrics struct {
	ordersCreated   prometheus.Counter
	orderStatus     *prometheus.CounterVec
	payments        *prometheus.CounterVec
	stockConflicts  prometheus.Counter
	outboxPublished *prometheus.CounterVec
}

// NewCommerceMetrics registers the commerce collectors on reg.
func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	if reg == nil {
		return &CommerceMetrics{}
	}
	m := &CommerceMetrics{
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders created from carts.",
		}),
		orderStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_status_transitions_total",
			Help:      "Order status transitions by target status.",
		}, []string{"status"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Payment attempts by gateway and resulting status.",
		}, []string{"gateway", "status"}),
		stockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_reservation_conflicts_total",
			Help:      "Reservations rejected for insufficient stock.",
		}),
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_total",
			Help:      "Outbox publish attempts by event type and result.",
		}, []string{"event_type", "result"}),
	}
	reg.MustRegister(m.ordersCreated, m.orderStatus, m.payments, m.stockConflicts, m.outboxPublished)
	return m
}

func (m *CommerceMetrics) IncOrderCreated() {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *CommerceMetrics) IncOrderStatus(status string) {
	if m == nil || m.orderStatus == nil {
		return
	}
	m.orderStatus.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *CommerceMetrics) IncPayment(gateway, status string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(gateway), normalizeLabel(status)).Inc()
}

func (m *CommerceMetrics) IncStockConflict() {
	if m == nil || m.stockConflicts == nil {
		return
	}
	m.stockConflicts.Inc()
}

func (m *CommerceMetrics) IncOutbox(eventType string, published bool) {
	if m == nil || m.outboxPublished == nil {
		return
	}
	result := "failed"
	if published {
		result = "published"
	}
	m.outboxPublished.WithLabelValues(normalizeLabel(eventType), result).Inc()
}
