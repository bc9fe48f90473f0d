package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/storage"
)

// AdminHandler maintains a tenant's services and calendar.
type AdminHandler struct {
	store  storage.Store
	logger *slog.Logger
	// rejectOverlap refuses windows that overlap an existing active window.
	rejectOverlap bool
}

func NewAdminHandler(store storage.Store, logger *slog.Logger, rejectOverlap bool) *AdminHandler {
	return &AdminHandler{store: store, logger: logger, rejectOverlap: rejectOverlap}
}

type serviceRequest struct {
	Name              string                  `json:"name"`
	DurationMinutes   int                     `json:"duration_minutes"`
	CapacityPerWindow int                     `json:"capacity_per_window"`
	Active            *bool                   `json:"active"`
	PriceCents        int64                   `json:"price_cents"`
	PriceBySize       map[model.PetSize]int64 `json:"price_by_size"`
}

type serviceResponse struct {
	ID                string                  `json:"id"`
	Name              string                  `json:"name"`
	DurationMinutes   int                     `json:"duration_minutes"`
	CapacityPerWindow int                     `json:"capacity_per_window"`
	Active            bool                    `json:"active"`
	PriceCents        int64                   `json:"price_cents"`
	PriceBySize       map[model.PetSize]int64 `json:"price_by_size,omitempty"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

func toServiceResponse(s model.Service) serviceResponse {
	return serviceResponse{
		ID:                s.ID,
		Name:              s.Name,
		DurationMinutes:   s.DurationMinutes,
		CapacityPerWindow: s.CapacityPerWindow,
		Active:            s.Active,
		PriceCents:        s.Pricing.FixedCents,
		PriceBySize:       s.Pricing.BySize,
		UpdatedAt:         s.UpdatedAt,
	}
}

type windowRequest struct {
	Weekday  int             `json:"weekday"`
	Start    model.TimeOfDay `json:"start"`
	End      model.TimeOfDay `json:"end"`
	Capacity int             `json:"capacity"`
	Active   *bool           `json:"active"`
}

type windowResponse struct {
	ID       string          `json:"id"`
	Weekday  int             `json:"weekday"`
	Start    model.TimeOfDay `json:"start"`
	End      model.TimeOfDay `json:"end"`
	Capacity int             `json:"capacity"`
	Active   bool            `json:"active"`
}

func toWindowResponse(w model.AvailabilityWindow) windowResponse {
	return windowResponse{ID: w.ID, Weekday: int(w.Weekday), Start: w.Start, End: w.End, Capacity: w.Capacity, Active: w.Active}
}

type blockedDateRequest struct {
	Date    model.Date       `json:"date"`
	FullDay bool             `json:"full_day"`
	Start   *model.TimeOfDay `json:"start"`
	End     *model.TimeOfDay `json:"end"`
	Reason  string           `json:"reason"`
}

type blockedDateResponse struct {
	ID      string           `json:"id"`
	Date    model.Date       `json:"date"`
	FullDay bool             `json:"full_day"`
	Start   *model.TimeOfDay `json:"start,omitempty"`
	End     *model.TimeOfDay `json:"end,omitempty"`
	Reason  string           `json:"reason,omitempty"`
}

func toBlockedDateResponse(b model.BlockedDate) blockedDateResponse {
	resp := blockedDateResponse{ID: b.ID, Date: b.Date, FullDay: b.FullDay, Reason: b.Reason}
	if b.Range != nil {
		start, end := b.Range.Start, b.Range.End
		resp.Start, resp.End = &start, &end
	}
	return resp
}

// SaveService creates a service, or replaces it when the route carries an id.
// POST /api/v1/admin/services, PUT /api/v1/admin/services/{serviceID}
func (h *AdminHandler) SaveService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, "invalid json body")
		return
	}
	svc := model.Service{
		ID:                chi.URLParam(r, "serviceID"),
		TenantID:          tenantID(r),
		Name:              strings.TrimSpace(req.Name),
		DurationMinutes:   req.DurationMinutes,
		CapacityPerWindow: req.CapacityPerWindow,
		Active:            req.Active == nil || *req.Active,
		Pricing:           model.Pricing{FixedCents: req.PriceCents, BySize: req.PriceBySize},
	}
	if err := svc.Validate(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.store.SaveService(r.Context(), &svc); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	code := http.StatusOK
	if chi.URLParam(r, "serviceID") == "" {
		code = http.StatusCreated
	}
	writeJSON(w, code, toServiceResponse(svc))
}

func (h *AdminHandler) GetService(w http.ResponseWriter, r *http.Request) {
	svc, err := h.store.GetService(r.Context(), tenantID(r), chi.URLParam(r, "serviceID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toServiceResponse(svc))
}

func (h *AdminHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.store.ListServices(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]serviceResponse, 0, len(services))
	for _, s := range services {
		items = append(items, toServiceResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": items})
}

func (h *AdminHandler) SaveWindow(w http.ResponseWriter, r *http.Request) {
	var req windowRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, "invalid json body")
		return
	}
	win := model.AvailabilityWindow{
		ID:       chi.URLParam(r, "windowID"),
		TenantID: tenantID(r),
		Weekday:  time.Weekday(req.Weekday),
		Start:    req.Start,
		End:      req.End,
		Capacity: req.Capacity,
		Active:   req.Active == nil || *req.Active,
	}
	if err := win.Validate(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if h.rejectOverlap {
		existing, err := h.store.ListAllWindows(r.Context(), win.TenantID)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if err := calendar.RejectOverlappingWindows(existing, win); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}
	if err := h.store.SaveWindow(r.Context(), &win); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	code := http.StatusOK
	if chi.URLParam(r, "windowID") == "" {
		code = http.StatusCreated
	}
	writeJSON(w, code, toWindowResponse(win))
}

func (h *AdminHandler) ListWindows(w http.ResponseWriter, r *http.Request) {
	windows, err := h.store.ListAllWindows(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]windowResponse, 0, len(windows))
	for _, win := range windows {
		items = append(items, toWindowResponse(win))
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": items})
}

func (h *AdminHandler) DeleteWindow(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteWindow(r.Context(), tenantID(r), chi.URLParam(r, "windowID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) AddBlockedDate(w http.ResponseWriter, r *http.Request) {
	var req blockedDateRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, "invalid json body")
		return
	}
	b := model.BlockedDate{
		TenantID: tenantID(r),
		Date:     req.Date,
		FullDay:  req.FullDay,
		Reason:   strings.TrimSpace(req.Reason),
	}
	if !req.FullDay && req.Start != nil && req.End != nil {
		b.Range = &model.Interval{Start: *req.Start, End: *req.End}
	}
	if err := b.Validate(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.store.SaveBlockedDate(r.Context(), &b); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBlockedDateResponse(b))
}

// ListBlockedDates returns blocks between from and to inclusive.
// GET /api/v1/admin/blocked-dates?from=2026-03-01&to=2026-03-31
func (h *AdminHandler) ListBlockedDates(w http.ResponseWriter, r *http.Request) {
	from, err := model.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		badRequest(w, r, "invalid from")
		return
	}
	to, err := model.ParseDate(r.URL.Query().Get("to"))
	if err != nil || to.Before(from) {
		badRequest(w, r, "invalid to")
		return
	}
	blocks, err := h.store.ListBlockedRange(r.Context(), tenantID(r), from, to)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]blockedDateResponse, 0, len(blocks))
	for _, b := range blocks {
		items = append(items, toBlockedDateResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocked_dates": items})
}

func (h *AdminHandler) DeleteBlockedDate(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteBlockedDate(r.Context(), tenantID(r), chi.URLParam(r, "blockedID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
