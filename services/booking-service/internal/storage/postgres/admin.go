package postgres

import (
	"context"
	"encoding/json"

	"github.com/md-rashed-zaman/groomly/libs/db"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
)

func (s *Store) ListAppointments(ctx context.Context, tenantID string, date model.Date) ([]model.Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND appt_date = $2
		ORDER BY start_min, created_at
	`, tenantID, date.Time())
	if err != nil {
		return nil, mapErr(err)
	}
	return collectAppointments(rows)
}

func (s *Store) ListHistory(ctx context.Context, tenantID, appointmentID string) ([]model.StatusChange, error) {
	id, err := uuidArg(appointmentID)
	if err != nil {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, tenant_id, appointment_id::text, from_status, to_status, actor, reason, changed_at
		FROM appointment_status_history
		WHERE tenant_id = $1 AND appointment_id = $2::uuid
		ORDER BY id
	`, tenantID, id)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []model.StatusChange
	for rows.Next() {
		var c model.StatusChange
		var from, to, actor string
		if err := rows.Scan(&c.ID, &c.TenantID, &c.AppointmentID, &from, &to, &actor, &c.Reason, &c.At); err != nil {
			return nil, err
		}
		c.From, c.To, c.Actor = model.Status(from), model.Status(to), model.Actor(actor)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetRecovery(ctx context.Context, tenantID, appointmentID string) (model.RecoveryAttempt, error) {
	id, err := uuidArg(appointmentID)
	if err != nil {
		return model.RecoveryAttempt{}, err
	}
	r, err := scanRecovery(s.db.QueryRow(ctx, `
		SELECT `+recoveryColumns+`
		FROM recovery_attempts
		WHERE tenant_id = $1 AND appointment_id = $2::uuid
	`, tenantID, id))
	return r, mapErr(err)
}

func (s *Store) SaveService(ctx context.Context, svc *model.Service) error {
	bySize, err := json.Marshal(svc.Pricing.BySize)
	if err != nil {
		return err
	}
	if svc.Pricing.BySize == nil {
		bySize = []byte(`{}`)
	}
	if svc.ID == "" {
		err = s.db.QueryRow(ctx, `
			INSERT INTO services (tenant_id, name, duration_minutes, capacity_per_window, active, price_cents, price_by_size)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id::text, created_at, updated_at
		`, svc.TenantID, svc.Name, svc.DurationMinutes, svc.CapacityPerWindow, svc.Active, svc.Pricing.FixedCents, bySize,
		).Scan(&svc.ID, &svc.CreatedAt, &svc.UpdatedAt)
		return serviceErr(err)
	}
	id, err := uuidArg(svc.ID)
	if err != nil {
		return err
	}
	err = s.db.QueryRow(ctx, `
		UPDATE services SET
			name = $3, duration_minutes = $4, capacity_per_window = $5, active = $6,
			price_cents = $7, price_by_size = $8, updated_at = now()
		WHERE tenant_id = $1 AND id = $2::uuid
		RETURNING created_at, updated_at
	`, svc.TenantID, id, svc.Name, svc.DurationMinutes, svc.CapacityPerWindow, svc.Active, svc.Pricing.FixedCents, bySize,
	).Scan(&svc.CreatedAt, &svc.UpdatedAt)
	return serviceErr(err)
}

// serviceErr reports a clash on the per-tenant unique service name as a
// validation error.
func serviceErr(err error) error {
	if db.IsUniqueViolation(err) {
		return model.NewValidationError("name", "a service with this name already exists")
	}
	return mapErr(err)
}

func (s *Store) ListServices(ctx context.Context, tenantID string) ([]model.Service, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE tenant_id = $1
		ORDER BY name, id
	`, tenantID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

func (s *Store) SaveWindow(ctx context.Context, w *model.AvailabilityWindow) error {
	if w.ID == "" {
		err := s.db.QueryRow(ctx, `
			INSERT INTO availability_windows (tenant_id, weekday, start_min, end_min, capacity, active)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id::text, created_at, updated_at
		`, w.TenantID, int(w.Weekday), int(w.Start), int(w.End), w.Capacity, w.Active,
		).Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
		return mapErr(err)
	}
	id, err := uuidArg(w.ID)
	if err != nil {
		return err
	}
	err = s.db.QueryRow(ctx, `
		UPDATE availability_windows SET
			weekday = $3, start_min = $4, end_min = $5, capacity = $6, active = $7, updated_at = now()
		WHERE tenant_id = $1 AND id = $2::uuid
		RETURNING created_at, updated_at
	`, w.TenantID, id, int(w.Weekday), int(w.Start), int(w.End), w.Capacity, w.Active,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	return mapErr(err)
}

func (s *Store) ListAllWindows(ctx context.Context, tenantID string) ([]model.AvailabilityWindow, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE tenant_id = $1
		ORDER BY weekday, start_min, id
	`, tenantID)
	if err != nil {
		return nil, mapErr(err)
	}
	return scanWindows(rows)
}

func (s *Store) DeleteWindow(ctx context.Context, tenantID, windowID string) error {
	id, err := uuidArg(windowID)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		DELETE FROM availability_windows
		WHERE tenant_id = $1 AND id = $2::uuid
	`, tenantID, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Store) SaveBlockedDate(ctx context.Context, b *model.BlockedDate) error {
	var start, end *int
	if !b.FullDay && b.Range != nil {
		st, en := int(b.Range.Start), int(b.Range.End)
		start, end = &st, &en
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO blocked_dates (tenant_id, day, full_day, start_min, end_min, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id::text, created_at
	`, b.TenantID, b.Date.Time(), b.FullDay, start, end, b.Reason).Scan(&b.ID, &b.CreatedAt)
	return mapErr(err)
}

func (s *Store) ListBlockedRange(ctx context.Context, tenantID string, from, to model.Date) ([]model.BlockedDate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+blockedColumns+`
		FROM blocked_dates
		WHERE tenant_id = $1 AND day BETWEEN $2 AND $3
		ORDER BY day, start_min NULLS FIRST
	`, tenantID, from.Time(), to.Time())
	if err != nil {
		return nil, mapErr(err)
	}
	return scanBlocked(rows)
}

func (s *Store) DeleteBlockedDate(ctx context.Context, tenantID, blockedID string) error {
	id, err := uuidArg(blockedID)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		DELETE FROM blocked_dates
		WHERE tenant_id = $1 AND id = $2::uuid
	`, tenantID, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
