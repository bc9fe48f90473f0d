// Package memory is an in-process storage.Store. Transactions buffer their
// writes and apply them atomically on commit. Day and row locks are held
// until the transaction ends, the same way the postgres store behaves.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/storage"
)

type Store struct {
	mu    sync.RWMutex
	state state

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	now func() time.Time
}

type state struct {
	services   map[string]model.Service
	windows    map[string]model.AvailabilityWindow
	blocked    map[string]model.BlockedDate
	appts      map[string]model.Appointment
	history    []model.StatusChange
	recoveries map[string]model.RecoveryAttempt
	events     []outbox.Event
	inbox      map[string]string
}

func New() *Store {
	return &Store{
		state: state{
			services:   map[string]model.Service{},
			windows:    map[string]model.AvailabilityWindow{},
			blocked:    map[string]model.BlockedDate{},
			appts:      map[string]model.Appointment{},
			recoveries: map[string]model.RecoveryAttempt{},
			inbox:      map[string]string{},
		},
		locks: map[string]*sync.Mutex{},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) lockFor(key string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}

func (s *Store) InTx(ctx context.Context, fn storage.TxFunc) error {
	t := newTx(s)
	defer t.release()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	s.commit(t)
	return nil
}

func (s *Store) commit(t *tx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range t.appts {
		s.state.appts[id] = a
	}
	for id, r := range t.recoveries {
		s.state.recoveries[id] = r
	}
	for id, typ := range t.inbox {
		s.state.inbox[id] = typ
	}
	for _, c := range t.history {
		c.ID = int64(len(s.state.history) + 1)
		s.state.history = append(s.state.history, c)
	}
	s.state.events = append(s.state.events, t.events...)
}

// DrainEvents returns and forgets every committed outbox event.
func (s *Store) DrainEvents() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.state.events
	s.state.events = nil
	return out
}

// Reader methods on the store see committed state only.

func (s *Store) GetService(_ context.Context, tenantID, serviceID string) (model.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.state.services[serviceID]
	if !ok || svc.TenantID != tenantID {
		return model.Service{}, model.ErrNotFound
	}
	return cloneService(svc), nil
}

func (s *Store) ListWindows(_ context.Context, tenantID string, weekday time.Weekday) ([]model.AvailabilityWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.AvailabilityWindow
	for _, w := range s.state.windows {
		if w.TenantID == tenantID && w.Weekday == weekday {
			out = append(out, w)
		}
	}
	sortWindows(out)
	return out, nil
}

func (s *Store) ListBlockedDates(_ context.Context, tenantID string, date model.Date) ([]model.BlockedDate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.BlockedDate
	for _, b := range s.state.blocked {
		if b.TenantID == tenantID && b.Date == date {
			out = append(out, b)
		}
	}
	sortBlocked(out)
	return out, nil
}

func (s *Store) ListHolding(_ context.Context, tenantID string, date model.Date) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterAppointments(s.state.appts, nil, tenantID, date, true), nil
}

func (s *Store) GetAppointment(_ context.Context, tenantID, appointmentID string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.appts[appointmentID]
	if !ok || a.TenantID != tenantID {
		return model.Appointment{}, model.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAppointments(_ context.Context, tenantID string, date model.Date) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterAppointments(s.state.appts, nil, tenantID, date, false), nil
}

func (s *Store) ListHistory(_ context.Context, tenantID, appointmentID string) ([]model.StatusChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.StatusChange
	for _, c := range s.state.history {
		if c.TenantID == tenantID && c.AppointmentID == appointmentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) GetRecovery(_ context.Context, tenantID, appointmentID string) (model.RecoveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.recoveries[appointmentID]
	if !ok || r.TenantID != tenantID {
		return model.RecoveryAttempt{}, model.ErrNotFound
	}
	return r, nil
}

func filterAppointments(committed, overlay map[string]model.Appointment, tenantID string, date model.Date, holdingOnly bool) []model.Appointment {
	var out []model.Appointment
	keep := func(a model.Appointment) bool {
		return a.TenantID == tenantID && a.Date == date && (!holdingOnly || a.Status.HoldsCapacity())
	}
	for id, a := range committed {
		if o, ok := overlay[id]; ok {
			a = o
		}
		if keep(a) {
			out = append(out, a)
		}
	}
	for id, a := range overlay {
		if _, ok := committed[id]; ok {
			continue
		}
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func sortWindows(ws []model.AvailabilityWindow) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].Weekday != ws[j].Weekday {
			return ws[i].Weekday < ws[j].Weekday
		}
		if ws[i].Start != ws[j].Start {
			return ws[i].Start < ws[j].Start
		}
		return ws[i].ID < ws[j].ID
	})
}

func sortBlocked(bs []model.BlockedDate) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].Date != bs[j].Date {
			return bs[i].Date.Before(bs[j].Date)
		}
		return bs[i].ID < bs[j].ID
	})
}

func cloneService(svc model.Service) model.Service {
	if svc.Pricing.BySize != nil {
		prices := make(map[model.PetSize]int64, len(svc.Pricing.BySize))
		for k, v := range svc.Pricing.BySize {
			prices[k] = v
		}
		svc.Pricing.BySize = prices
	}
	return svc
}

func newID() string {
	return uuid.NewString()
}

func sortServices(svcs []model.Service) {
	sort.Slice(svcs, func(i, j int) bool {
		if svcs[i].Name != svcs[j].Name {
			return svcs[i].Name < svcs[j].Name
		}
		return svcs[i].ID < svcs[j].ID
	})
}
