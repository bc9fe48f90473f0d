package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBookingMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveBooking("created")
	m.ObserveBooking("created")
	m.ObserveRejection("capacity")
	m.ObserveTransition("", "pending")
	m.ObserveRecoveryMessage("offer", "sent")
	m.ObserveOutboxPublished(3)
	m.ObserveOutboxPublished(0)
	m.ObserveOperation("create", 0.01)

	if got := testutil.ToFloat64(m.bookingsTotal.WithLabelValues("created")); got != 2 {
		t.Fatalf("expected 2 created, got %v", got)
	}
	if got := testutil.ToFloat64(m.transitionsTotal.WithLabelValues("none", "pending")); got != 1 {
		t.Fatalf("expected creation transition labelled none, got %v", got)
	}
	if got := testutil.ToFloat64(m.outboxPublished); got != 3 {
		t.Fatalf("expected 3 published, got %v", got)
	}
}

func TestBookingMetrics_NilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveBooking("created")
	m.ObserveRejection("capacity")
	m.ObserveTransition("pending", "confirmed")
	m.ObserveRecoveryMessage("nudge", "failed")
	m.ObserveOutboxPublished(1)
	m.ObserveOperation("create", 0.1)
}
