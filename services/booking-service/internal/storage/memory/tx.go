package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/storage"
)

type tx struct {
	store *Store
	held  map[string]*sync.Mutex

	appts      map[string]model.Appointment
	recoveries map[string]model.RecoveryAttempt
	inbox      map[string]string
	history    []model.StatusChange
	events     []outbox.Event
}

var _ storage.Tx = (*tx)(nil)

func newTx(s *Store) *tx {
	return &tx{
		store:      s,
		held:       map[string]*sync.Mutex{},
		appts:      map[string]model.Appointment{},
		recoveries: map[string]model.RecoveryAttempt{},
		inbox:      map[string]string{},
	}
}

func (t *tx) lock(key string) {
	if _, ok := t.held[key]; ok {
		return
	}
	m := t.store.lockFor(key)
	m.Lock()
	t.held[key] = m
}

func (t *tx) tryLock(key string) bool {
	if _, ok := t.held[key]; ok {
		return true
	}
	m := t.store.lockFor(key)
	if !m.TryLock() {
		return false
	}
	t.held[key] = m
	return true
}

func (t *tx) release() {
	for key, m := range t.held {
		m.Unlock()
		delete(t.held, key)
	}
}

func (t *tx) GetService(ctx context.Context, tenantID, serviceID string) (model.Service, error) {
	return t.store.GetService(ctx, tenantID, serviceID)
}

func (t *tx) ListWindows(ctx context.Context, tenantID string, weekday time.Weekday) ([]model.AvailabilityWindow, error) {
	return t.store.ListWindows(ctx, tenantID, weekday)
}

func (t *tx) ListBlockedDates(ctx context.Context, tenantID string, date model.Date) ([]model.BlockedDate, error) {
	return t.store.ListBlockedDates(ctx, tenantID, date)
}

func (t *tx) ListHolding(_ context.Context, tenantID string, date model.Date) ([]model.Appointment, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return filterAppointments(t.store.state.appts, t.appts, tenantID, date, true), nil
}

func (t *tx) GetAppointment(ctx context.Context, tenantID, appointmentID string) (model.Appointment, error) {
	if a, ok := t.appts[appointmentID]; ok && a.TenantID == tenantID {
		return a, nil
	}
	return t.store.GetAppointment(ctx, tenantID, appointmentID)
}

func (t *tx) LockDay(ctx context.Context, tenantID string, date model.Date) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.lock("day:" + tenantID + ":" + date.String())
	return nil
}

func (t *tx) GetAppointmentForUpdate(ctx context.Context, tenantID, appointmentID string) (model.Appointment, error) {
	t.lock("appt:" + appointmentID)
	return t.GetAppointment(ctx, tenantID, appointmentID)
}

func (t *tx) InsertAppointment(_ context.Context, a *model.Appointment) error {
	now := t.store.now()
	if a.ID == "" {
		a.ID = newID()
	}
	a.CreatedAt, a.UpdatedAt = now, now
	t.appts[a.ID] = *a
	return nil
}

func (t *tx) UpdateAppointment(ctx context.Context, a *model.Appointment) error {
	if _, err := t.GetAppointment(ctx, a.TenantID, a.ID); err != nil {
		return err
	}
	a.UpdatedAt = t.store.now()
	t.appts[a.ID] = *a
	return nil
}

func (t *tx) AppendHistory(_ context.Context, c model.StatusChange) error {
	if c.At.IsZero() {
		c.At = t.store.now()
	}
	t.history = append(t.history, c)
	return nil
}

func (t *tx) Enqueue(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}

func (t *tx) InsertRecovery(_ context.Context, r model.RecoveryAttempt) error {
	t.lock("recovery:" + r.AppointmentID)
	if _, ok := t.recoveries[r.AppointmentID]; ok {
		return nil
	}
	t.store.mu.RLock()
	_, exists := t.store.state.recoveries[r.AppointmentID]
	t.store.mu.RUnlock()
	if exists {
		return nil
	}
	now := t.store.now()
	r.CreatedAt, r.UpdatedAt = now, now
	t.recoveries[r.AppointmentID] = r
	return nil
}

func (t *tx) GetRecoveryForUpdate(ctx context.Context, tenantID, appointmentID string) (model.RecoveryAttempt, error) {
	t.lock("recovery:" + appointmentID)
	if r, ok := t.recoveries[appointmentID]; ok && r.TenantID == tenantID {
		return r, nil
	}
	return t.store.GetRecovery(ctx, tenantID, appointmentID)
}

// FetchDueRecoveries skips rows another transaction holds, like FOR UPDATE SKIP LOCKED.
func (t *tx) FetchDueRecoveries(_ context.Context, now time.Time, limit int) ([]model.RecoveryAttempt, error) {
	t.store.mu.RLock()
	var due []model.RecoveryAttempt
	for id, r := range t.store.state.recoveries {
		if o, ok := t.recoveries[id]; ok {
			r = o
		}
		if r.Status == model.RecoveryScheduled && !r.NextRunAt.After(now) {
			due = append(due, r)
		}
	}
	t.store.mu.RUnlock()

	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(due[j].NextRunAt) })

	out := make([]model.RecoveryAttempt, 0, len(due))
	for _, r := range due {
		if limit > 0 && len(out) >= limit {
			break
		}
		if !t.tryLock("recovery:" + r.AppointmentID) {
			continue
		}
		// Re-read under the lock; the row may have changed since the scan.
		if _, own := t.recoveries[r.AppointmentID]; !own {
			t.store.mu.RLock()
			r = t.store.state.recoveries[r.AppointmentID]
			t.store.mu.RUnlock()
		}
		if r.Status == model.RecoveryScheduled && !r.NextRunAt.After(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *tx) UpdateRecovery(ctx context.Context, r model.RecoveryAttempt) error {
	if _, err := t.GetRecoveryForUpdate(ctx, r.TenantID, r.AppointmentID); err != nil {
		return err
	}
	r.UpdatedAt = t.store.now()
	t.recoveries[r.AppointmentID] = r
	return nil
}

func (t *tx) RecordInbox(_ context.Context, eventID, eventType string) (bool, error) {
	t.lock("inbox:" + eventID)
	if _, ok := t.inbox[eventID]; ok {
		return false, nil
	}
	t.store.mu.RLock()
	_, seen := t.store.state.inbox[eventID]
	t.store.mu.RUnlock()
	if seen {
		return false, nil
	}
	t.inbox[eventID] = eventType
	return true, nil
}
