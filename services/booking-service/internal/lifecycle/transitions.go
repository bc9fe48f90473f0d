package lifecycle

import (
	"time"

	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
)

var transitions = map[model.Status][]model.Status{
	model.StatusPending:   {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed: {model.StatusInService, model.StatusCancelled, model.StatusNoShow},
	model.StatusInService: {model.StatusCompleted},
}

// Allowed reports whether the table permits from -> to.
func Allowed(from, to model.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Next returns the statuses reachable from s in one step.
func Next(s model.Status) []model.Status {
	out := make([]model.Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

type change struct {
	to     model.Status
	actor  model.Actor
	reason string
	at     time.Time
}

// apply moves a to c.to, enforcing the table and the per-status guards, and
// stamps the matching timestamps. a is only modified on success.
func apply(a *model.Appointment, c change) error {
	from := a.Status
	if !Allowed(from, c.to) {
		return &model.TransitionError{From: from, To: c.to}
	}

	next := *a
	next.Status = c.to
	at := c.at
	switch c.to {
	case model.StatusConfirmed:
		if !next.ConfirmedByCustomer || !next.ConfirmedByCompany {
			return &model.TransitionError{From: from, To: c.to, Detail: "both customer and company must confirm"}
		}
		next.ConfirmedAt = &at
	case model.StatusCancelled:
		next.CancelledAt = &at
		next.CancelReason = c.reason
		next.CancelledBy = c.actor
	case model.StatusInService:
		if next.ArrivedAt == nil {
			next.ArrivedAt = &at
		}
		next.StartedAt = &at
	case model.StatusCompleted:
		next.CompletedAt = &at
	case model.StatusNoShow:
		next.NoShowAt = &at
	}
	*a = next
	return nil
}
