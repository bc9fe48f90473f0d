package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters and histograms for the booking engine.
// A nil *BookingMetrics is valid and records nothing.
type BookingMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	rejectionsTotal  *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	recoveryTotal    *prometheus.CounterVec
	outboxPublished  prometheus.Counter
	opLatency        *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groomly",
			Subsystem: "booking",
			Name:      "requests_total",
			Help:      "Booking requests by outcome (created, rejected, conflict, error)",
		}, []string{"outcome"}),
		rejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groomly",
			Subsystem: "booking",
			Name:      "rejections_total",
			Help:      "Rejected booking or reschedule requests by reason",
		}, []string{"reason"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groomly",
			Subsystem: "booking",
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions",
		}, []string{"from", "to"}),
		recoveryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groomly",
			Subsystem: "recovery",
			Name:      "messages_total",
			Help:      "Cancellation recovery messages by kind and delivery status",
		}, []string{"kind", "status"}),
		outboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groomly",
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox events published to Kafka",
		}),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "groomly",
			Subsystem: "booking",
			Name:      "operation_duration_seconds",
			Help:      "Latency of lifecycle operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.rejectionsTotal, m.transitionsTotal, m.recoveryTotal, m.outboxPublished, m.opLatency)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(reason).Inc()
}

func (m *BookingMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	if from == "" {
		from = "none"
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *BookingMetrics) ObserveRecoveryMessage(kind, status string) {
	if m == nil {
		return
	}
	m.recoveryTotal.WithLabelValues(kind, status).Inc()
}

func (m *BookingMetrics) ObserveOutboxPublished(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outboxPublished.Add(float64(n))
}

func (m *BookingMetrics) ObserveOperation(op string, seconds float64) {
	if m == nil {
		return
	}
	m.opLatency.WithLabelValues(op).Observe(seconds)
}
