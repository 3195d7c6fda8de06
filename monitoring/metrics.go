package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	purchaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_operations_total",
			Help: "Total purchase attempts by outcome",
		},
		[]string{"status"},
	)

	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Total tickets issued",
		},
		[]string{"event_id", "ticket_type_id"},
	)

	inventoryRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inventory_remaining_total",
			Help: "Remaining tickets per ticket type after the last sale",
		},
		[]string{"event_id", "ticket_type_id"},
	)

	purchaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "purchase_duration_seconds",
			Help:    "Duration of purchase operations",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"status"},
	)

	eventOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_operations_total",
			Help: "Total organizer event operations",
		},
		[]string{"operation", "status"},
	)

	notificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Notifications that could not be published",
		},
		[]string{"type"},
	)
)

// Monitor records ledger metrics. The zero value is ready to use.
type Monitor struct{}

func NewMonitor() *Monitor {
	return &Monitor{}
}

// Track purchase outcome and latency
func (m *Monitor) TrackPurchase(status string, duration time.Duration) {
	purchaseOperations.WithLabelValues(status).Inc()
	purchaseDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *Monitor) TrackTicketsIssued(eventID, ticketTypeID string, count, remaining int) {
	ticketsIssued.WithLabelValues(eventID, ticketTypeID).Add(float64(count))
	inventoryRemaining.WithLabelValues(eventID, ticketTypeID).Set(float64(remaining))
}

func (m *Monitor) TrackEventOperation(operation, status string) {
	eventOperations.WithLabelValues(operation, status).Inc()
}

func (m *Monitor) TrackNotificationFailure(notificationType string) {
	notificationFailures.WithLabelValues(notificationType).Inc()
}
