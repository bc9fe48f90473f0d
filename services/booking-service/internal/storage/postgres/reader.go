package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
)

type reader struct {
	q querier
}

const serviceColumns = `id::text, tenant_id, name, duration_minutes, capacity_per_window, active, price_cents, price_by_size, created_at, updated_at`

func scanService(row pgx.Row) (model.Service, error) {
	var svc model.Service
	var bySize []byte
	if err := row.Scan(&svc.ID, &svc.TenantID, &svc.Name, &svc.DurationMinutes, &svc.CapacityPerWindow,
		&svc.Active, &svc.Pricing.FixedCents, &bySize, &svc.CreatedAt, &svc.UpdatedAt); err != nil {
		return model.Service{}, err
	}
	if len(bySize) > 0 {
		var prices map[model.PetSize]int64
		if err := json.Unmarshal(bySize, &prices); err != nil {
			return model.Service{}, err
		}
		if len(prices) > 0 {
			svc.Pricing.BySize = prices
		}
	}
	return svc, nil
}

func (r reader) GetService(ctx context.Context, tenantID, serviceID string) (model.Service, error) {
	id, err := uuidArg(serviceID)
	if err != nil {
		return model.Service{}, err
	}
	svc, err := scanService(r.q.QueryRow(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE tenant_id = $1 AND id = $2::uuid
	`, tenantID, id))
	return svc, mapErr(err)
}

const windowColumns = `id::text, tenant_id, weekday, start_min, end_min, capacity, active, created_at, updated_at`

func scanWindows(rows pgx.Rows) ([]model.AvailabilityWindow, error) {
	defer rows.Close()
	var out []model.AvailabilityWindow
	for rows.Next() {
		var w model.AvailabilityWindow
		var weekday, start, end int
		if err := rows.Scan(&w.ID, &w.TenantID, &weekday, &start, &end, &w.Capacity, &w.Active, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		w.Weekday = time.Weekday(weekday)
		w.Start = model.TimeOfDay(start)
		w.End = model.TimeOfDay(end)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r reader) ListWindows(ctx context.Context, tenantID string, weekday time.Weekday) ([]model.AvailabilityWindow, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE tenant_id = $1 AND weekday = $2
		ORDER BY start_min, id
	`, tenantID, int(weekday))
	if err != nil {
		return nil, mapErr(err)
	}
	return scanWindows(rows)
}

const blockedColumns = `id::text, tenant_id, day, full_day, start_min, end_min, reason, created_at`

func scanBlocked(rows pgx.Rows) ([]model.BlockedDate, error) {
	defer rows.Close()
	var out []model.BlockedDate
	for rows.Next() {
		var b model.BlockedDate
		var day time.Time
		var start, end *int
		if err := rows.Scan(&b.ID, &b.TenantID, &day, &b.FullDay, &start, &end, &b.Reason, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Date = model.DateOf(day)
		if start != nil && end != nil {
			b.Range = &model.Interval{Start: model.TimeOfDay(*start), End: model.TimeOfDay(*end)}
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r reader) ListBlockedDates(ctx context.Context, tenantID string, date model.Date) ([]model.BlockedDate, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+blockedColumns+`
		FROM blocked_dates
		WHERE tenant_id = $1 AND day = $2
	`, tenantID, date.Time())
	if err != nil {
		return nil, mapErr(err)
	}
	return scanBlocked(rows)
}

const appointmentColumns = `id::text, tenant_id, customer_id, pet_id, pet_size, service_id::text, service_name,
	price_cents, duration_minutes, appt_date, start_min, status,
	confirmed_by_customer, confirmed_by_company, confirmed_at,
	cancel_reason, cancelled_by, cancelled_at,
	arrived_at, started_at, completed_at, no_show_at,
	paid, paid_amount_cents, paid_at,
	rating, review_comment, reviewed_at,
	notes, COALESCE(rebook_of::text, ''), created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var petSize, status, cancelledBy string
	var day time.Time
	var start int
	if err := row.Scan(
		&a.ID, &a.TenantID, &a.CustomerID, &a.PetID, &petSize, &a.ServiceID, &a.ServiceName,
		&a.PriceCents, &a.DurationMinutes, &day, &start, &status,
		&a.ConfirmedByCustomer, &a.ConfirmedByCompany, &a.ConfirmedAt,
		&a.CancelReason, &cancelledBy, &a.CancelledAt,
		&a.ArrivedAt, &a.StartedAt, &a.CompletedAt, &a.NoShowAt,
		&a.Paid, &a.PaidAmountCents, &a.PaidAt,
		&a.Rating, &a.ReviewComment, &a.ReviewedAt,
		&a.Notes, &a.RebookOf, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return model.Appointment{}, err
	}
	a.PetSize = model.PetSize(petSize)
	a.Status = model.Status(status)
	a.CancelledBy = model.Actor(cancelledBy)
	a.Date = model.DateOf(day)
	a.Start = model.TimeOfDay(start)
	return a, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r reader) ListHolding(ctx context.Context, tenantID string, date model.Date) ([]model.Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND appt_date = $2 AND status IN ('pending', 'confirmed')
		ORDER BY start_min, id
	`, tenantID, date.Time())
	if err != nil {
		return nil, mapErr(err)
	}
	return collectAppointments(rows)
}

func (r reader) GetAppointment(ctx context.Context, tenantID, appointmentID string) (model.Appointment, error) {
	id, err := uuidArg(appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	a, err := scanAppointment(r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND id = $2::uuid
	`, tenantID, id))
	return a, mapErr(err)
}
