// Package lifecycle owns appointment state. It is the only writer of an
// appointment's status and records every change in the status history and
// the outbox within the same transaction.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/storage"
)

// RecoveryScheduler is told about cancellations and rebookings inside the
// transaction that performs them.
type RecoveryScheduler interface {
	Schedule(ctx context.Context, tx storage.Tx, appt model.Appointment) error
	MarkRescheduled(ctx context.Context, tx storage.Tx, tenantID, cancelledID, newID string) error
}

type MetricsRecomputer interface {
	RecomputeCustomerMetrics(ctx context.Context, tenantID, customerID string) error
}

type Deps struct {
	Store      storage.Store
	Engine     *availability.Engine
	Recovery   RecoveryScheduler
	Sender     notify.Sender
	Recomputer MetricsRecomputer
	Metrics    *metrics.BookingMetrics
	Logger     *slog.Logger
	Now        func() time.Time
}

type Manager struct {
	store      storage.Store
	engine     *availability.Engine
	recovery   RecoveryScheduler
	sender     notify.Sender
	recomputer MetricsRecomputer
	metrics    *metrics.BookingMetrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewManager(d Deps) *Manager {
	if d.Sender == nil {
		d.Sender = notify.NewNoopSender()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Manager{
		store:      d.Store,
		engine:     d.Engine,
		recovery:   d.Recovery,
		sender:     d.Sender,
		recomputer: d.Recomputer,
		metrics:    d.Metrics,
		logger:     d.Logger,
		now:        func() time.Time { return d.Now().UTC() },
	}
}

type CreateRequest struct {
	TenantID   string
	CustomerID string
	PetID      string
	PetSize    model.PetSize
	ServiceID  string
	Date       model.Date
	Start      model.TimeOfDay
	Notes      string
	// RebookOf links the booking to a cancelled appointment it replaces.
	RebookOf string
	Actor    model.Actor
}

func (r CreateRequest) Validate() error {
	v := &model.ValidationError{}
	if r.TenantID == "" {
		v.Add("tenant_id", "required")
	}
	if r.CustomerID == "" {
		v.Add("customer_id", "required")
	}
	if r.ServiceID == "" {
		v.Add("service_id", "required")
	}
	if r.Date.IsZero() {
		v.Add("date", "required")
	}
	if !r.Start.Valid() {
		v.Add("start", "must be a time of day")
	}
	if r.PetSize != "" && !r.PetSize.Valid() {
		v.Add("pet_size", "must be small, medium, large or giant")
	}
	return v.Err()
}

// Create books a pending appointment. The slot is checked once without locks
// to produce a rejection with suggestions, then again under the day lock
// right before the insert. Losing the slot between the two checks returns
// model.ErrConcurrencyConflict.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (model.Appointment, error) {
	defer m.observe("create", time.Now())
	if err := req.Validate(); err != nil {
		return model.Appointment{}, err
	}
	if req.Actor == "" {
		req.Actor = model.ActorCustomer
	}

	decision, err := m.engine.CheckAvailability(ctx, req.TenantID, req.ServiceID, req.Date, req.Start)
	if err != nil {
		m.metrics.ObserveBooking("error")
		return model.Appointment{}, err
	}
	if !decision.Available {
		m.metrics.ObserveBooking("rejected")
		m.metrics.ObserveRejection(string(decision.Reason))
		return model.Appointment{}, decision.Err()
	}

	svc := decision.Service
	price, err := svc.Pricing.PriceFor(req.PetSize)
	if err != nil {
		return model.Appointment{}, model.NewValidationError("pet_size", err.Error())
	}

	appt := model.Appointment{
		TenantID:        req.TenantID,
		CustomerID:      req.CustomerID,
		PetID:           req.PetID,
		PetSize:         req.PetSize,
		ServiceID:       svc.ID,
		ServiceName:     svc.Name,
		PriceCents:      price,
		DurationMinutes: svc.DurationMinutes,
		Date:            req.Date,
		Start:           req.Start,
		Status:          model.StatusPending,
		Notes:           req.Notes,
		RebookOf:        req.RebookOf,
	}

	err = m.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.LockDay(ctx, req.TenantID, req.Date); err != nil {
			return err
		}
		recheck, err := m.engine.With(tx).Evaluate(ctx, req.TenantID, svc.DurationMinutes, req.Date, req.Start, "")
		if err != nil {
			return err
		}
		if !recheck.Available {
			return fmt.Errorf("%w: slot %s %s became unavailable (%s)", model.ErrConcurrencyConflict, req.Date, req.Start, recheck.Reason)
		}

		if req.RebookOf != "" {
			if _, err := tx.GetAppointment(ctx, req.TenantID, req.RebookOf); err != nil {
				if errors.Is(err, model.ErrNotFound) {
					return model.NewValidationError("rebook_of", "unknown appointment")
				}
				return err
			}
		}

		if err := tx.InsertAppointment(ctx, &appt); err != nil {
			return err
		}
		if err := m.record(ctx, tx, appt, "", req.Actor, "", outbox.AppointmentCreated); err != nil {
			return err
		}
		if req.RebookOf != "" && m.recovery != nil {
			return m.recovery.MarkRescheduled(ctx, tx, req.TenantID, req.RebookOf, appt.ID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrConcurrencyConflict) {
			m.metrics.ObserveBooking("conflict")
		} else {
			m.metrics.ObserveBooking("error")
		}
		return model.Appointment{}, err
	}

	m.metrics.ObserveBooking("created")
	m.metrics.ObserveTransition("", string(model.StatusPending))
	m.logger.InfoContext(ctx, "appointment created",
		"tenant_id", appt.TenantID,
		"appointment_id", appt.ID,
		"service_id", appt.ServiceID,
		"date", appt.Date.String(),
		"start", appt.Start.String(),
	)
	m.notify(ctx, appt, notify.KindCreated, createdMessage(appt))
	return appt, nil
}

// Confirm records one party's confirmation. The appointment moves to
// confirmed once both customer and company have confirmed. Repeated
// confirmations by the same party, or on an already confirmed appointment,
// change nothing.
func (m *Manager) Confirm(ctx context.Context, tenantID, appointmentID string, actor model.Actor) (model.Appointment, error) {
	defer m.observe("confirm", time.Now())
	if actor != model.ActorCustomer && actor != model.ActorCompany {
		return model.Appointment{}, model.NewValidationError("actor", "must be customer or company")
	}

	var appt model.Appointment
	transitioned := false
	err := m.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		appt, err = tx.GetAppointmentForUpdate(ctx, tenantID, appointmentID)
		if err != nil {
			return err
		}
		switch appt.Status {
		case model.StatusConfirmed:
			return nil
		case model.StatusPending:
		default:
			return &model.TransitionError{From: appt.Status, To: model.StatusConfirmed}
		}

		flag := &appt.ConfirmedByCustomer
		if actor == model.ActorCompany {
			flag = &appt.ConfirmedByCompany
		}
		if *flag {
			return nil
		}
		*flag = true

		if appt.ConfirmedByCustomer && appt.ConfirmedByCompany {
			if err := apply(&appt, change{to: model.StatusConfirmed, actor: actor, at: m.now()}); err != nil {
				return err
			}
			transitioned = true
		}
		if err := tx.UpdateAppointment(ctx, &appt); err != nil {
			return err
		}
		if transitioned {
			return m.record(ctx, tx, appt, model.StatusPending, actor, "", outbox.AppointmentConfirmed)
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if transitioned {
		m.afterTransition(ctx, appt, model.StatusPending)
	}
	return appt, nil
}

// Cancel moves a pending or confirmed appointment to cancelled and schedules
// cancellation recovery in the same transaction.
func (m *Manager) Cancel(ctx context.Context, tenantID, appointmentID, reason string, actor model.Actor) (model.Appointment, error) {
	defer m.observe("cancel", time.Now())
	return m.transition(ctx, tenantID, appointmentID, change{to: model.StatusCancelled, actor: actor, reason: reason}, func(ctx context.Context, tx storage.Tx, appt model.Appointment) error {
		if m.recovery == nil {
			return nil
		}
		return m.recovery.Schedule(ctx, tx, appt)
	})
}

// UpdateStatus applies any transition permitted by the table.
func (m *Manager) UpdateStatus(ctx context.Context, tenantID, appointmentID string, to model.Status, actor model.Actor, reason string) (model.Appointment, error) {
	switch to {
	case model.StatusCancelled:
		return m.Cancel(ctx, tenantID, appointmentID, reason, actor)
	case model.StatusConfirmed:
		return m.Confirm(ctx, tenantID, appointmentID, actor)
	}
	defer m.observe("update_status", time.Now())
	return m.transition(ctx, tenantID, appointmentID, change{to: to, actor: actor, reason: reason}, nil)
}

// RegisterArrival checks a confirmed pet in and starts the service.
func (m *Manager) RegisterArrival(ctx context.Context, tenantID, appointmentID string) (model.Appointment, error) {
	defer m.observe("arrival", time.Now())
	return m.transition(ctx, tenantID, appointmentID, change{to: model.StatusInService, actor: model.ActorCompany}, nil)
}

type txHook func(ctx context.Context, tx storage.Tx, appt model.Appointment) error

func (m *Manager) transition(ctx context.Context, tenantID, appointmentID string, c change, hook txHook) (model.Appointment, error) {
	if c.actor == "" {
		c.actor = model.ActorSystem
	}
	var appt model.Appointment
	var from model.Status
	err := m.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		appt, err = tx.GetAppointmentForUpdate(ctx, tenantID, appointmentID)
		if err != nil {
			return err
		}
		from = appt.Status
		c.at = m.now()
		if err := apply(&appt, c); err != nil {
			return err
		}
		if err := tx.UpdateAppointment(ctx, &appt); err != nil {
			return err
		}
		if err := m.record(ctx, tx, appt, from, c.actor, c.reason, eventFor(c.to)); err != nil {
			return err
		}
		if hook != nil {
			return hook(ctx, tx, appt)
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	m.afterTransition(ctx, appt, from)
	return appt, nil
}

func eventFor(to model.Status) string {
	switch to {
	case model.StatusConfirmed:
		return outbox.AppointmentConfirmed
	case model.StatusCancelled:
		return outbox.AppointmentCancelled
	case model.StatusCompleted:
		return outbox.AppointmentCompleted
	}
	return outbox.AppointmentStatusChanged
}

// afterTransition runs the side effects that must not hold the transaction open.
func (m *Manager) afterTransition(ctx context.Context, appt model.Appointment, from model.Status) {
	m.metrics.ObserveTransition(string(from), string(appt.Status))
	m.logger.InfoContext(ctx, "appointment status changed",
		"tenant_id", appt.TenantID,
		"appointment_id", appt.ID,
		"from", string(from),
		"to", string(appt.Status),
	)
	switch appt.Status {
	case model.StatusConfirmed:
		m.notify(ctx, appt, notify.KindConfirmed, confirmedMessage(appt))
	case model.StatusCancelled:
		m.notify(ctx, appt, notify.KindCancelled, cancelledMessage(appt))
	case model.StatusCompleted:
		if m.recomputer != nil {
			if err := m.recomputer.RecomputeCustomerMetrics(ctx, appt.TenantID, appt.CustomerID); err != nil {
				m.logger.WarnContext(ctx, "customer metrics recompute failed",
					"tenant_id", appt.TenantID,
					"customer_id", appt.CustomerID,
					"err", err,
				)
			}
		}
	}
}

// Reschedule moves a pending or confirmed appointment to a new date and
// start. Status and confirmations are kept.
func (m *Manager) Reschedule(ctx context.Context, tenantID, appointmentID string, date model.Date, start model.TimeOfDay, actor model.Actor) (model.Appointment, error) {
	defer m.observe("reschedule", time.Now())
	if date.IsZero() || !start.Valid() {
		v := &model.ValidationError{}
		if date.IsZero() {
			v.Add("date", "required")
		}
		if !start.Valid() {
			v.Add("start", "must be a time of day")
		}
		return model.Appointment{}, v
	}

	current, err := m.store.GetAppointment(ctx, tenantID, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := reschedulable(current); err != nil {
		return model.Appointment{}, err
	}
	if current.Date == date && current.Start == start {
		return current, nil
	}

	pre, err := m.engine.Evaluate(ctx, tenantID, current.DurationMinutes, date, start, current.ID)
	if err != nil {
		return model.Appointment{}, err
	}
	if !pre.Available {
		m.metrics.ObserveRejection(string(pre.Reason))
		pre.Suggestions, err = m.engine.SuggestAlternatives(ctx, availability.SuggestQuery{
			TenantID:        tenantID,
			DurationMinutes: current.DurationMinutes,
			From:            date,
			Skip:            &model.Slot{Date: date, Start: start},
		})
		if err != nil {
			return model.Appointment{}, err
		}
		return model.Appointment{}, pre.Err()
	}

	var appt model.Appointment
	var previous model.Slot
	err = m.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.LockDay(ctx, tenantID, date); err != nil {
			return err
		}
		var err error
		appt, err = tx.GetAppointmentForUpdate(ctx, tenantID, appointmentID)
		if err != nil {
			return err
		}
		if err := reschedulable(appt); err != nil {
			return err
		}
		recheck, err := m.engine.With(tx).Evaluate(ctx, tenantID, appt.DurationMinutes, date, start, appt.ID)
		if err != nil {
			return err
		}
		if !recheck.Available {
			return fmt.Errorf("%w: slot %s %s became unavailable (%s)", model.ErrConcurrencyConflict, date, start, recheck.Reason)
		}

		previous = model.Slot{Date: appt.Date, Start: appt.Start, End: appt.End()}
		appt.Date = date
		appt.Start = start
		if err := tx.UpdateAppointment(ctx, &appt); err != nil {
			return err
		}
		evt, err := outbox.NewEvent(appt.TenantID, outbox.AggregateAppointment, appt.ID, outbox.AppointmentRescheduled, rescheduledPayload{
			appointmentPayload: newAppointmentPayload(appt, appt.Status, actor, "", m.now()),
			PreviousDate:       previous.Date,
			PreviousStart:      previous.Start,
		})
		if err != nil {
			return err
		}
		return tx.Enqueue(ctx, evt)
	})
	if err != nil {
		return model.Appointment{}, err
	}

	m.logger.InfoContext(ctx, "appointment rescheduled",
		"tenant_id", appt.TenantID,
		"appointment_id", appt.ID,
		"from", previous.Date.String()+" "+previous.Start.String(),
		"to", appt.Date.String()+" "+appt.Start.String(),
	)
	m.notify(ctx, appt, notify.KindRescheduled, rescheduledMessage(appt))
	return appt, nil
}

func reschedulable(a model.Appointment) error {
	if a.Status.HoldsCapacity() {
		return nil
	}
	return &model.TransitionError{From: a.Status, To: a.Status, Detail: "only pending or confirmed appointments can be rescheduled"}
}

// RegisterPayment marks the appointment paid. Payment processing itself
// happens elsewhere; this only records the outcome.
func (m *Manager) RegisterPayment(ctx context.Context, tenantID, appointmentID string, amountCents int64) (model.Appointment, error) {
	defer m.observe("payment", time.Now())
	if amountCents <= 0 {
		return model.Appointment{}, model.NewValidationError("amount_cents", "must be positive")
	}
	return m.annotate(ctx, tenantID, appointmentID, outbox.AppointmentPaid, func(a *model.Appointment) error {
		if a.Status == model.StatusCancelled || a.Status == model.StatusNoShow {
			return model.NewValidationError("status", fmt.Sprintf("cannot register payment for a %s appointment", a.Status))
		}
		if a.Paid {
			return model.NewValidationError("paid", "payment already registered")
		}
		at := m.now()
		a.Paid = true
		a.PaidAmountCents = amountCents
		a.PaidAt = &at
		return nil
	})
}

// AddReview stores the customer's rating of a completed appointment. Each
// appointment takes one review.
func (m *Manager) AddReview(ctx context.Context, tenantID, appointmentID string, rating int, comment string) (model.Appointment, error) {
	defer m.observe("review", time.Now())
	if rating < 1 || rating > 5 {
		return model.Appointment{}, model.NewValidationError("rating", "must be between 1 and 5")
	}
	return m.annotate(ctx, tenantID, appointmentID, outbox.AppointmentReviewed, func(a *model.Appointment) error {
		if a.Status != model.StatusCompleted {
			return model.NewValidationError("status", "only completed appointments can be reviewed")
		}
		if a.ReviewedAt != nil {
			return model.NewValidationError("rating", "appointment already reviewed")
		}
		at := m.now()
		a.Rating = rating
		a.ReviewComment = comment
		a.ReviewedAt = &at
		return nil
	})
}

// annotate updates fields that do not change the status.
func (m *Manager) annotate(ctx context.Context, tenantID, appointmentID, eventType string, mutate func(*model.Appointment) error) (model.Appointment, error) {
	var appt model.Appointment
	err := m.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		appt, err = tx.GetAppointmentForUpdate(ctx, tenantID, appointmentID)
		if err != nil {
			return err
		}
		if err := mutate(&appt); err != nil {
			return err
		}
		if err := tx.UpdateAppointment(ctx, &appt); err != nil {
			return err
		}
		evt, err := outbox.NewEvent(appt.TenantID, outbox.AggregateAppointment, appt.ID, eventType, newAppointmentPayload(appt, appt.Status, model.ActorSystem, "", m.now()))
		if err != nil {
			return err
		}
		return tx.Enqueue(ctx, evt)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (m *Manager) Get(ctx context.Context, tenantID, appointmentID string) (model.Appointment, error) {
	return m.store.GetAppointment(ctx, tenantID, appointmentID)
}

func (m *Manager) ListByDate(ctx context.Context, tenantID string, date model.Date) ([]model.Appointment, error) {
	return m.store.ListAppointments(ctx, tenantID, date)
}

func (m *Manager) History(ctx context.Context, tenantID, appointmentID string) ([]model.StatusChange, error) {
	if _, err := m.store.GetAppointment(ctx, tenantID, appointmentID); err != nil {
		return nil, err
	}
	return m.store.ListHistory(ctx, tenantID, appointmentID)
}

// record appends the history row and the outbox event for a status write.
func (m *Manager) record(ctx context.Context, tx storage.Tx, appt model.Appointment, from model.Status, actor model.Actor, reason, eventType string) error {
	at := m.now()
	if err := tx.AppendHistory(ctx, model.StatusChange{
		TenantID:      appt.TenantID,
		AppointmentID: appt.ID,
		From:          from,
		To:            appt.Status,
		Actor:         actor,
		Reason:        reason,
		At:            at,
	}); err != nil {
		return err
	}
	evt, err := outbox.NewEvent(appt.TenantID, outbox.AggregateAppointment, appt.ID, eventType, newAppointmentPayload(appt, from, actor, reason, at))
	if err != nil {
		return err
	}
	return tx.Enqueue(ctx, evt)
}

// notify is best effort: a delivery failure is logged and never undoes the
// committed change.
func (m *Manager) notify(ctx context.Context, appt model.Appointment, kind notify.Kind, body string) {
	err := m.sender.Send(ctx, appt.CustomerID, notify.Message{
		TenantID:      appt.TenantID,
		AppointmentID: appt.ID,
		Kind:          kind,
		Body:          body,
	})
	if err != nil {
		m.logger.WarnContext(ctx, "notification failed",
			"tenant_id", appt.TenantID,
			"appointment_id", appt.ID,
			"kind", string(kind),
			"provider", m.sender.ProviderID(),
			"err", err,
		)
	}
}

func (m *Manager) observe(op string, started time.Time) {
	m.metrics.ObserveOperation(op, time.Since(started).Seconds())
}
