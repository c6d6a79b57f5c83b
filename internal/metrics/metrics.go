package metrics

import (
	"sync"

	"safepaw/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "safepaw"

	// unknownTarget labels transition requests naming no known status.
	unknownTarget = "unknown"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Booking status transition attempts by target status and result.",
		},
		[]string{"target", "result"},
	)

	bookingsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Booking creation attempts by result.",
		},
		[]string{"result"},
	)

	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment webhook deliveries by internal outcome.",
		},
		[]string{"outcome"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Push notifications by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingTransitions, bookingsCreated, webhookEvents, notifications)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncTransition counts a transition attempt. Targets outside the status set
// share one label so client input cannot grow the series count.
func IncTransition(target, result string) {
	if !models.BookingStatus(target).IsValid() {
		target = unknownTarget
	}
	bookingTransitions.WithLabelValues(target, result).Inc()
}

func IncBookingCreated(result string) {
	bookingsCreated.WithLabelValues(result).Inc()
}

func IncWebhook(outcome string) {
	webhookEvents.WithLabelValues(outcome).Inc()
}

func IncNotification(result string) {
	notifications.WithLabelValues(result).Inc()
}
