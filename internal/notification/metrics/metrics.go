package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the notification dispatcher.
type Metrics struct {
	// Terminal delivery outcomes by event type and status
	DeliveryOutcome *prometheus.CounterVec

	// Individual delivery attempts by result ("ok", "error")
	DeliveryAttempts *prometheus.CounterVec
}

// New creates a new Metrics instance with all dispatcher metrics registered.
func New() *Metrics {
	return &Metrics{
		DeliveryOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "caregate_notification_delivery_outcomes_total",
			Help: "Terminal notification delivery outcomes by event type and status",
		}, []string{"event_type", "status"}),

		DeliveryAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "caregate_notification_delivery_attempts_total",
			Help: "Notification delivery attempts by result",
		}, []string{"result"}),
	}
}

// IncrementOutcome records a terminal delivery outcome.
func (m *Metrics) IncrementOutcome(eventType, status string) {
	if m != nil {
		m.DeliveryOutcome.WithLabelValues(eventType, status).Inc()
	}
}

// IncrementAttempt records one delivery attempt.
func (m *Metrics) IncrementAttempt(result string) {
	if m != nil {
		m.DeliveryAttempts.WithLabelValues(result).Inc()
	}
}
