package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Availability metrics
	AvailabilityRequests *prometheus.CounterVec
	AvailabilityLatency  prometheus.Histogram
	SlotsReturned        prometheus.Histogram
	RuleCacheLookups     *prometheus.CounterVec

	// Booking metrics
	BookingsCreated   prometheus.Counter
	BookingConflicts  prometheus.Counter
	BookingsCancelled prometheus.Counter

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec

	// Broker metrics
	EventsPublished *prometheus.CounterVec
	EventsProcessed *prometheus.CounterVec

	// Worker metrics
	HolidayImports    *prometheus.CounterVec
	NotificationsSent *prometheus.CounterVec
}

// NewMetrics creates all application metrics and registers them with reg.
// A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		AvailabilityRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "availability_requests_total",
			Help:      "Availability computations by outcome",
		}, []string{"outcome"}),
		AvailabilityLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "availability_duration_seconds",
			Help:      "Time spent loading data and computing availability",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		SlotsReturned: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "availability_slots_returned",
			Help:      "Number of free slots returned per computation",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		RuleCacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rule_cache_lookups_total",
			Help:      "Weekly rule cache lookups by result",
		}, []string{"result"}),

		BookingsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bookings_created_total",
			Help:      "Total number of appointments booked",
		}),
		BookingConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "booking_conflicts_total",
			Help:      "Booking attempts rejected because the slot was not free",
		}),
		BookingsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bookings_cancelled_total",
			Help:      "Total number of appointments cancelled",
		}),

		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operation_duration_seconds",
			Help:      "Duration of database operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),

		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_published_total",
			Help:      "Events published to the broker",
		}, []string{"topic", "status"}),
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_processed_total",
			Help:      "Events consumed from the broker",
		}, []string{"topic", "status"}),

		HolidayImports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "holiday_imports_total",
			Help:      "Holiday calendar imports by status",
		}, []string{"status"}),
		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_sent_total",
			Help:      "Notifications delivered by channel and status",
		}, []string{"channel", "status"}),
	}
}

// ObserveDB records one database operation.
func (m *Metrics) ObserveDB(operation string, seconds float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.DatabaseOperations.WithLabelValues(operation, status).Inc()
	m.DatabaseLatency.WithLabelValues(operation).Observe(seconds)
}
