package lifecycle

import (
	"time"

	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
)

type appointmentPayload struct {
	AppointmentID string          `json:"appointment_id"`
	TenantID      string          `json:"tenant_id"`
	CustomerID    string          `json:"customer_id"`
	PetID         string          `json:"pet_id,omitempty"`
	ServiceID     string          `json:"service_id"`
	ServiceName   string          `json:"service_name"`
	PriceCents    int64           `json:"price_cents"`
	Date          model.Date      `json:"date"`
	Start         model.TimeOfDay `json:"start"`
	End           model.TimeOfDay `json:"end"`
	Status        model.Status    `json:"status"`
	PreviousState model.Status    `json:"previous_status,omitempty"`
	Actor         model.Actor     `json:"actor,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	RebookOf      string          `json:"rebook_of,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func newAppointmentPayload(a model.Appointment, from model.Status, actor model.Actor, reason string, at time.Time) appointmentPayload {
	return appointmentPayload{
		AppointmentID: a.ID,
		TenantID:      a.TenantID,
		CustomerID:    a.CustomerID,
		PetID:         a.PetID,
		ServiceID:     a.ServiceID,
		ServiceName:   a.ServiceName,
		PriceCents:    a.PriceCents,
		Date:          a.Date,
		Start:         a.Start,
		End:           a.End(),
		Status:        a.Status,
		PreviousState: from,
		Actor:         actor,
		Reason:        reason,
		RebookOf:      a.RebookOf,
		OccurredAt:    at,
	}
}

type rescheduledPayload struct {
	appointmentPayload
	PreviousDate  model.Date      `json:"previous_date"`
	PreviousStart model.TimeOfDay `json:"previous_start"`
}
