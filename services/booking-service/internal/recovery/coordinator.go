// Package recovery re-engages customers after a cancellation. Each cancelled
// appointment gets one recovery row; a worker polls due rows, sends an
// immediate offer with alternative slots, and one follow-up nudge a day
// later. Rows stop as soon as the customer rebooks or replies.
package recovery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/groomly/libs/otel"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/storage"
)

const (
	DefaultDelay           = 24 * time.Hour
	DefaultMaxAttempts     = 2
	DefaultMaxFailures     = 5
	DefaultSuggestionDays  = 3
	DefaultSuggestionCount = 3
)

type Config struct {
	// Delay separates the offer from the nudge.
	Delay       time.Duration
	MaxAttempts int
	// MaxFailures caps failed sends per row before it is abandoned.
	MaxFailures     int
	SuggestionDays  int
	SuggestionCount int
	Interval        time.Duration
	BatchSize       int
	// Backoff postpones a row whose send failed.
	Backoff time.Duration
	Now     func() time.Time
}

type Coordinator struct {
	store   storage.Store
	engine  *availability.Engine
	sender  notify.Sender
	metrics *metrics.BookingMetrics
	logger  *slog.Logger
	cfg     Config
}

func NewCoordinator(store storage.Store, engine *availability.Engine, sender notify.Sender, m *metrics.BookingMetrics, logger *slog.Logger, cfg Config) *Coordinator {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.SuggestionDays <= 0 {
		cfg.SuggestionDays = DefaultSuggestionDays
	}
	if cfg.SuggestionCount <= 0 {
		cfg.SuggestionCount = DefaultSuggestionCount
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if sender == nil {
		sender = notify.NewNoopSender()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:   store,
		engine:  engine,
		sender:  sender,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
	}
}

func (c *Coordinator) now() time.Time {
	return c.cfg.Now().UTC()
}

// Schedule creates the recovery row for a cancelled appointment, due
// immediately. It runs inside the cancelling transaction.
func (c *Coordinator) Schedule(ctx context.Context, tx storage.Tx, appt model.Appointment) error {
	tc := otelx.Capture(ctx)
	return tx.InsertRecovery(ctx, model.RecoveryAttempt{
		AppointmentID: appt.ID,
		TenantID:      appt.TenantID,
		CustomerID:    appt.CustomerID,
		ServiceID:     appt.ServiceID,
		MaxAttempts:   c.cfg.MaxAttempts,
		NextRunAt:     c.now(),
		Status:        model.RecoveryScheduled,
		Traceparent:   tc.Traceparent,
		Tracestate:    tc.Tracestate,
	})
}

// MarkRescheduled stops recovery for cancelledID because newID replaced it.
// Appointments without a recovery row are ignored.
func (c *Coordinator) MarkRescheduled(ctx context.Context, tx storage.Tx, tenantID, cancelledID, newID string) error {
	rec, err := tx.GetRecoveryForUpdate(ctx, tenantID, cancelledID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Status == model.RecoveryRescheduled {
		return nil
	}
	at := c.now()
	rec.Status = model.RecoveryRescheduled
	rec.RescheduledAt = &at
	rec.RescheduledTo = newID
	return tx.UpdateRecovery(ctx, rec)
}

// MarkResponded stops recovery after the customer replied. It reports false
// when there is no scheduled recovery for the appointment.
func (c *Coordinator) MarkResponded(ctx context.Context, tx storage.Tx, tenantID, appointmentID string, at time.Time) (bool, error) {
	rec, err := tx.GetRecoveryForUpdate(ctx, tenantID, appointmentID)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if rec.Status != model.RecoveryScheduled {
		return false, nil
	}
	if at.IsZero() {
		at = c.now()
	}
	at = at.UTC()
	rec.Status = model.RecoveryResponded
	rec.RespondedAt = &at
	return true, tx.UpdateRecovery(ctx, rec)
}

func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.ProcessDue(ctx); err != nil {
				c.logger.Error("recovery batch failed", "err", err)
			}
		}
	}
}

// ProcessDue claims every due row in one transaction, delivers the claimed
// messages after it commits and returns how many were delivered. A claim
// advances the row before anything is sent, so a failing batch sends nothing
// and a delivered message is never sent again for the same attempt.
func (c *Coordinator) ProcessDue(ctx context.Context) (int, error) {
	var claims []claim
	err := c.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		claims = claims[:0]
		due, err := tx.FetchDueRecoveries(ctx, c.now(), c.cfg.BatchSize)
		if err != nil {
			return err
		}
		for _, rec := range due {
			cl, ok, err := c.claim(ctx, tx, rec)
			if err != nil {
				return err
			}
			if ok {
				claims = append(claims, cl)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, cl := range claims {
		if c.deliver(ctx, cl) {
			sent++
		}
	}
	return sent, nil
}

// claim is a message reserved for one recovery row.
type claim struct {
	rec   model.RecoveryAttempt
	kind  notify.Kind
	msg   notify.Message
	slots []model.Slot
}

// claim reserves the next attempt of rec: the attempt counter moves forward
// and the row is pushed past the nudge delay, or marked exhausted on the last
// attempt. The returned bool is false when there is nothing to send.
func (c *Coordinator) claim(ctx context.Context, tx storage.Tx, rec model.RecoveryAttempt) (claim, bool, error) {
	ctx = recoveryTrace(rec).Resume(ctx)
	appt, err := tx.GetAppointment(ctx, rec.TenantID, rec.AppointmentID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.logger.WarnContext(ctx, "recovery row without appointment; marking exhausted",
				"tenant_id", rec.TenantID, "appointment_id", rec.AppointmentID)
			rec.Status = model.RecoveryExhausted
			rec.LastError = "appointment not found"
			return claim{}, false, tx.UpdateRecovery(ctx, rec)
		}
		return claim{}, false, err
	}

	from := c.engine.Today()
	if appt.Date.After(from) {
		from = appt.Date
	}
	slots, err := c.engine.SuggestAlternatives(ctx, availability.SuggestQuery{
		TenantID:        appt.TenantID,
		DurationMinutes: appt.DurationMinutes,
		From:            from,
		Until:           from.AddDays(c.cfg.SuggestionDays - 1),
		Limit:           c.cfg.SuggestionCount,
	})
	if err != nil {
		return claim{}, false, err
	}

	kind := notify.KindRecoveryOffer
	body := offerMessage(appt, slots)
	if rec.Attempts > 0 {
		kind = notify.KindRecoveryNudge
		body = nudgeMessage(appt, slots)
	}

	rec.Attempts++
	rec.LastError = ""
	if rec.Attempts >= rec.MaxAttempts {
		rec.Status = model.RecoveryExhausted
	} else {
		rec.NextRunAt = c.now().Add(c.cfg.Delay)
	}
	if err := tx.UpdateRecovery(ctx, rec); err != nil {
		return claim{}, false, err
	}
	msg := notify.Message{
		TenantID:      appt.TenantID,
		AppointmentID: appt.ID,
		Kind:          kind,
		Body:          body,
		Slots:         slots,
	}
	return claim{
		rec:   rec,
		kind:  kind,
		msg:   msg,
		slots: slots,
	}, true, nil
}

// deliver sends a claimed message and settles the row in a new transaction.
// It reports whether the message went out.
func (c *Coordinator) deliver(ctx context.Context, cl claim) bool {
	rec := cl.rec
	ctx = recoveryTrace(rec).Resume(ctx)
	log := c.logger.With("tenant_id", rec.TenantID, "appointment_id", rec.AppointmentID, "kind", string(cl.kind))

	sendErr := c.sender.Send(ctx, rec.CustomerID, cl.msg)
	if sendErr == nil {
		c.metrics.ObserveRecoveryMessage(string(cl.kind), "sent")
		if err := c.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			return c.recordSent(ctx, tx, cl)
		}); err != nil {
			log.ErrorContext(ctx, "recovery message sent but event not recorded", "attempt", rec.Attempts, "err", err)
		}
		log.InfoContext(ctx, "recovery message sent", "attempt", rec.Attempts, "suggestions", len(cl.slots))
		return true
	}

	c.metrics.ObserveRecoveryMessage(string(cl.kind), "failed")
	log.WarnContext(ctx, "recovery message failed", "provider", c.sender.ProviderID(), "err", sendErr)
	if err := c.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return c.recordFailure(ctx, tx, cl, sendErr)
	}); err != nil {
		log.ErrorContext(ctx, "recording recovery failure", "err", err)
	}
	return false
}

func (c *Coordinator) recordSent(ctx context.Context, tx storage.Tx, cl claim) error {
	evt, err := outbox.NewEvent(cl.rec.TenantID, outbox.AggregateRecovery, cl.rec.AppointmentID, outbox.RecoveryMessage, messagePayload{
		AppointmentID: cl.rec.AppointmentID,
		TenantID:      cl.rec.TenantID,
		CustomerID:    cl.rec.CustomerID,
		Kind:          string(cl.kind),
		Attempt:       cl.rec.Attempts,
		Slots:         cl.slots,
		SentAt:        c.now(),
	})
	if err != nil {
		return err
	}
	return tx.Enqueue(ctx, evt)
}

// recordFailure gives the claimed attempt back and retries after the backoff.
// Once MaxFailures sends have failed the row is exhausted and a failure event
// is written for operators.
func (c *Coordinator) recordFailure(ctx context.Context, tx storage.Tx, cl claim, sendErr error) error {
	rec, err := tx.GetRecoveryForUpdate(ctx, cl.rec.TenantID, cl.rec.AppointmentID)
	if err != nil {
		return err
	}
	if rec.Attempts == cl.rec.Attempts {
		rec.Attempts--
	}
	rec.Failures++
	rec.LastError = sendErr.Error()

	switch {
	case rec.Status == model.RecoveryRescheduled || rec.Status == model.RecoveryResponded:
		// the customer came back while the send was in flight
	case rec.Failures >= c.cfg.MaxFailures:
		rec.Status = model.RecoveryExhausted
		evt, err := outbox.NewEvent(rec.TenantID, outbox.AggregateRecovery, rec.AppointmentID, outbox.RecoveryFailed, failurePayload{
			AppointmentID: rec.AppointmentID,
			TenantID:      rec.TenantID,
			CustomerID:    rec.CustomerID,
			Kind:          string(cl.kind),
			Attempts:      rec.Attempts,
			Failures:      rec.Failures,
			ErrorReason:   "max delivery failures reached",
			LastError:     rec.LastError,
			FailedAt:      c.now(),
		})
		if err != nil {
			return err
		}
		if err := tx.Enqueue(ctx, evt); err != nil {
			return err
		}
		c.logger.WarnContext(ctx, "recovery abandoned after repeated send failures",
			"tenant_id", rec.TenantID, "appointment_id", rec.AppointmentID, "failures", rec.Failures)
	default:
		rec.Status = model.RecoveryScheduled
		rec.NextRunAt = c.now().Add(c.cfg.Backoff)
	}
	return tx.UpdateRecovery(ctx, rec)
}

type messagePayload struct {
	AppointmentID string       `json:"appointment_id"`
	TenantID      string       `json:"tenant_id"`
	CustomerID    string       `json:"customer_id"`
	Kind          string       `json:"kind"`
	Attempt       int          `json:"attempt"`
	Slots         []model.Slot `json:"slots"`
	SentAt        time.Time    `json:"sent_at"`
}

type failurePayload struct {
	AppointmentID string    `json:"appointment_id"`
	TenantID      string    `json:"tenant_id"`
	CustomerID    string    `json:"customer_id"`
	Kind          string    `json:"kind"`
	Attempts      int       `json:"attempts"`
	Failures      int       `json:"failures"`
	ErrorReason   string    `json:"error_reason"`
	LastError     string    `json:"last_error"`
	FailedAt      time.Time `json:"failed_at"`
}

func recoveryTrace(rec model.RecoveryAttempt) otelx.TraceContext {
	return otelx.TraceContext{Traceparent: rec.Traceparent, Tracestate: rec.Tracestate}
}
