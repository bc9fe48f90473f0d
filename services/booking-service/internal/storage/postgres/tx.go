package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	otelx "github.com/md-rashed-zaman/groomly/libs/otel"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/storage"
)

type tx struct {
	reader
	tx     pgx.Tx
	outbox *outbox.Repository
}

var _ storage.Tx = (*tx)(nil)

// DayLockKey is the advisory lock name for one tenant's calendar day.
func DayLockKey(tenantID string, date model.Date) string {
	return "booking:" + tenantID + ":" + date.String()
}

func (t *tx) LockDay(ctx context.Context, tenantID string, date model.Date) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, DayLockKey(tenantID, date))
	return mapErr(err)
}

func (t *tx) GetAppointmentForUpdate(ctx context.Context, tenantID, appointmentID string) (model.Appointment, error) {
	id, err := uuidArg(appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	a, err := scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND id = $2::uuid
		FOR UPDATE
	`, tenantID, id))
	return a, mapErr(err)
}

func nullableUUID(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (t *tx) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(tenant_id, customer_id, pet_id, pet_size, service_id, service_name, price_cents, duration_minutes,
			 appt_date, start_min, status, confirmed_by_customer, confirmed_by_company, notes, rebook_of)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id::text, created_at, updated_at
	`, a.TenantID, a.CustomerID, a.PetID, string(a.PetSize), a.ServiceID, a.ServiceName, a.PriceCents, a.DurationMinutes,
		a.Date.Time(), int(a.Start), string(a.Status), a.ConfirmedByCustomer, a.ConfirmedByCompany, a.Notes, nullableUUID(a.RebookOf),
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	return mapErr(err)
}

func (t *tx) UpdateAppointment(ctx context.Context, a *model.Appointment) error {
	id, err := uuidArg(a.ID)
	if err != nil {
		return err
	}
	err = t.tx.QueryRow(ctx, `
		UPDATE appointments SET
			appt_date = $3, start_min = $4, status = $5,
			confirmed_by_customer = $6, confirmed_by_company = $7, confirmed_at = $8,
			cancel_reason = $9, cancelled_by = $10, cancelled_at = $11,
			arrived_at = $12, started_at = $13, completed_at = $14, no_show_at = $15,
			paid = $16, paid_amount_cents = $17, paid_at = $18,
			rating = $19, review_comment = $20, reviewed_at = $21,
			notes = $22, updated_at = now()
		WHERE tenant_id = $1 AND id = $2::uuid
		RETURNING updated_at
	`, a.TenantID, id, a.Date.Time(), int(a.Start), string(a.Status),
		a.ConfirmedByCustomer, a.ConfirmedByCompany, a.ConfirmedAt,
		a.CancelReason, string(a.CancelledBy), a.CancelledAt,
		a.ArrivedAt, a.StartedAt, a.CompletedAt, a.NoShowAt,
		a.Paid, a.PaidAmountCents, a.PaidAt,
		a.Rating, a.ReviewComment, a.ReviewedAt,
		a.Notes,
	).Scan(&a.UpdatedAt)
	return mapErr(err)
}

func (t *tx) AppendHistory(ctx context.Context, c model.StatusChange) error {
	at := c.At
	if at.IsZero() {
		at = nowUTC()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointment_status_history (tenant_id, appointment_id, from_status, to_status, actor, reason, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.TenantID, c.AppointmentID, string(c.From), string(c.To), string(c.Actor), c.Reason, at)
	return mapErr(err)
}

func (t *tx) Enqueue(ctx context.Context, evt outbox.Event) error {
	return mapErr(t.outbox.Insert(ctx, t.tx, evt))
}

func (t *tx) InsertRecovery(ctx context.Context, r model.RecoveryAttempt) error {
	tc := otelx.TraceContext{Traceparent: r.Traceparent, Tracestate: r.Tracestate}
	if tc.IsZero() {
		tc = otelx.Capture(ctx)
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO recovery_attempts
			(appointment_id, tenant_id, customer_id, service_id, attempts, max_attempts, next_run_at, status, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (appointment_id) DO NOTHING
	`, r.AppointmentID, r.TenantID, r.CustomerID, r.ServiceID, r.Attempts, r.MaxAttempts, r.NextRunAt, string(r.Status), tc.Traceparent, tc.Tracestate)
	return mapErr(err)
}

const recoveryColumns = `appointment_id::text, tenant_id, customer_id, service_id::text, attempts, max_attempts, failures, next_run_at, status,
	responded_at, rescheduled_at, rescheduled_to, last_error, traceparent, tracestate, created_at, updated_at`

func scanRecovery(row pgx.Row) (model.RecoveryAttempt, error) {
	var r model.RecoveryAttempt
	var status string
	if err := row.Scan(&r.AppointmentID, &r.TenantID, &r.CustomerID, &r.ServiceID, &r.Attempts, &r.MaxAttempts, &r.Failures, &r.NextRunAt, &status,
		&r.RespondedAt, &r.RescheduledAt, &r.RescheduledTo, &r.LastError, &r.Traceparent, &r.Tracestate, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return model.RecoveryAttempt{}, err
	}
	r.Status = model.RecoveryStatus(status)
	return r, nil
}

func (t *tx) GetRecoveryForUpdate(ctx context.Context, tenantID, appointmentID string) (model.RecoveryAttempt, error) {
	id, err := uuidArg(appointmentID)
	if err != nil {
		return model.RecoveryAttempt{}, err
	}
	r, err := scanRecovery(t.tx.QueryRow(ctx, `
		SELECT `+recoveryColumns+`
		FROM recovery_attempts
		WHERE tenant_id = $1 AND appointment_id = $2::uuid
		FOR UPDATE
	`, tenantID, id))
	return r, mapErr(err)
}

func (t *tx) FetchDueRecoveries(ctx context.Context, now time.Time, limit int) ([]model.RecoveryAttempt, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+recoveryColumns+`
		FROM recovery_attempts
		WHERE status = 'scheduled' AND next_run_at <= $1
		ORDER BY next_run_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []model.RecoveryAttempt
	for rows.Next() {
		r, err := scanRecovery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *tx) UpdateRecovery(ctx context.Context, r model.RecoveryAttempt) error {
	id, err := uuidArg(r.AppointmentID)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		UPDATE recovery_attempts SET
			attempts = $3, failures = $4, next_run_at = $5, status = $6,
			responded_at = $7, rescheduled_at = $8, rescheduled_to = $9,
			last_error = $10, updated_at = now()
		WHERE tenant_id = $1 AND appointment_id = $2::uuid
	`, r.TenantID, id, r.Attempts, r.Failures, r.NextRunAt, string(r.Status),
		r.RespondedAt, r.RescheduledAt, r.RescheduledTo, r.LastError)
	return mapErr(err)
}

// RecordInbox uses ON CONFLICT so a duplicate does not abort the surrounding transaction.
func (t *tx) RecordInbox(ctx context.Context, eventID, eventType string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}
