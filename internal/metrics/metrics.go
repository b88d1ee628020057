package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coachbook_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coachbook_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coachbook_bookings_total",
			Help: "Total number of booking state transitions",
		},
		[]string{"status"},
	)

	BookingCancellationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coachbook_booking_cancellations_total",
			Help: "Total number of booking cancellations",
		},
	)

	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coachbook_payments_total",
			Help: "Total number of payments by final status and type",
		},
		[]string{"status", "payment_type"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coachbook_webhook_events_total",
			Help: "Total number of gateway webhook events by type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	RefundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coachbook_refunds_total",
			Help: "Total number of refund attempts",
		},
		[]string{"outcome"},
	)

	WalletEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coachbook_wallet_entries_total",
			Help: "Total number of wallet ledger entries written",
		},
		[]string{"type"},
	)

	SlotReservationConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coachbook_slot_reservation_conflicts_total",
			Help: "Total number of slot reservations rejected for overlap",
		},
	)

	NotifyPublishFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coachbook_notify_publish_failures_total",
			Help: "Total number of failed event publishes",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordBooking(status string) {
	BookingsTotal.WithLabelValues(status).Inc()
}

func RecordBookingCancellation() {
	BookingCancellationsTotal.Inc()
}

func RecordPayment(status, paymentType string) {
	PaymentsTotal.WithLabelValues(status, paymentType).Inc()
}

func RecordWebhookEvent(eventType, outcome string) {
	WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func RecordRefund(outcome string) {
	RefundsTotal.WithLabelValues(outcome).Inc()
}

func RecordWalletEntry(entryType string) {
	WalletEntriesTotal.WithLabelValues(entryType).Inc()
}

func RecordSlotConflict() {
	SlotReservationConflictsTotal.Inc()
}

func RecordNotifyFailure() {
	NotifyPublishFailuresTotal.Inc()
}
