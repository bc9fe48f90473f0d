package memory

import (
	"context"
	"strings"

	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
)

func (s *Store) SaveService(_ context.Context, svc *model.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.state.services {
		if other.TenantID == svc.TenantID && other.ID != svc.ID && strings.EqualFold(other.Name, svc.Name) {
			return model.NewValidationError("name", "a service with this name already exists")
		}
	}
	now := s.now()
	if svc.ID == "" {
		svc.ID = newID()
		svc.CreatedAt = now
	} else {
		existing, ok := s.state.services[svc.ID]
		if !ok || existing.TenantID != svc.TenantID {
			return model.ErrNotFound
		}
		svc.CreatedAt = existing.CreatedAt
	}
	svc.UpdatedAt = now
	s.state.services[svc.ID] = cloneService(*svc)
	return nil
}

func (s *Store) ListServices(_ context.Context, tenantID string) ([]model.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Service
	for _, svc := range s.state.services {
		if svc.TenantID == tenantID {
			out = append(out, cloneService(svc))
		}
	}
	sortServices(out)
	return out, nil
}

func (s *Store) SaveWindow(_ context.Context, w *model.AvailabilityWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if w.ID == "" {
		w.ID = newID()
		w.CreatedAt = now
	} else {
		existing, ok := s.state.windows[w.ID]
		if !ok || existing.TenantID != w.TenantID {
			return model.ErrNotFound
		}
		w.CreatedAt = existing.CreatedAt
	}
	w.UpdatedAt = now
	s.state.windows[w.ID] = *w
	return nil
}

func (s *Store) ListAllWindows(_ context.Context, tenantID string) ([]model.AvailabilityWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.AvailabilityWindow
	for _, w := range s.state.windows {
		if w.TenantID == tenantID {
			out = append(out, w)
		}
	}
	sortWindows(out)
	return out, nil
}

func (s *Store) DeleteWindow(_ context.Context, tenantID, windowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.state.windows[windowID]
	if !ok || w.TenantID != tenantID {
		return model.ErrNotFound
	}
	delete(s.state.windows, windowID)
	return nil
}

func (s *Store) SaveBlockedDate(_ context.Context, b *model.BlockedDate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = newID()
	b.CreatedAt = s.now()
	if b.Range != nil {
		r := *b.Range
		b.Range = &r
	}
	s.state.blocked[b.ID] = *b
	return nil
}

func (s *Store) ListBlockedRange(_ context.Context, tenantID string, from, to model.Date) ([]model.BlockedDate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.BlockedDate
	for _, b := range s.state.blocked {
		if b.TenantID == tenantID && !b.Date.Before(from) && !b.Date.After(to) {
			out = append(out, b)
		}
	}
	sortBlocked(out)
	return out, nil
}

func (s *Store) DeleteBlockedDate(_ context.Context, tenantID, blockedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.state.blocked[blockedID]
	if !ok || b.TenantID != tenantID {
		return model.ErrNotFound
	}
	delete(s.state.blocked, blockedID)
	return nil
}
