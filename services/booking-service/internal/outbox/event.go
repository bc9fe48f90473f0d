package outbox

import (
	"encoding/json"
	"time"
)

const (
	AggregateAppointment = "appointment"
	AggregateRecovery    = "recovery"
)

// Event types. The Kafka topic name equals EventType (one topic per event).
const (
	AppointmentCreated       = "booking.appointment.created.v1"
	AppointmentConfirmed     = "booking.appointment.confirmed.v1"
	AppointmentStatusChanged = "booking.appointment.status_changed.v1"
	AppointmentCancelled     = "booking.appointment.cancelled.v1"
	AppointmentCompleted     = "booking.appointment.completed.v1"
	AppointmentRescheduled   = "booking.appointment.rescheduled.v1"
	AppointmentPaid          = "booking.appointment.paid.v1"
	AppointmentReviewed      = "booking.appointment.reviewed.v1"
	RecoveryMessage          = "booking.recovery.message.v1"
	RecoveryFailed           = "booking.recovery.failed.v1"
)

// Event is the domain event envelope written to the outbox table in the same
// transaction as the state change it describes.
type Event struct {
	TenantID      string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Record is an outbox row waiting to be published.
type Record struct {
	ID          int64
	EventID     string
	TenantID    string
	AggregateID string
	EventType   string
	Payload     []byte
	Traceparent string
	Tracestate  string
	CreatedAt   time.Time
}

func NewEvent(tenantID, aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		TenantID:      tenantID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}
