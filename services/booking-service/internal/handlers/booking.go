package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
)

type BookingHandler struct {
	manager *lifecycle.Manager
	engine  *availability.Engine
	logger  *slog.Logger
}

func NewBookingHandler(manager *lifecycle.Manager, engine *availability.Engine, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		manager: manager,
		engine:  engine,
		logger:  logger,
	}
}

type createAppointmentRequest struct {
	CustomerID string          `json:"customer_id"`
	PetID      string          `json:"pet_id"`
	PetSize    model.PetSize   `json:"pet_size"`
	ServiceID  string          `json:"service_id"`
	Date       model.Date      `json:"date"`
	Start      model.TimeOfDay `json:"start"`
	Notes      string          `json:"notes"`
	RebookOf   string          `json:"rebook_of"`
}

type actorRequest struct {
	Actor  model.Actor `json:"actor"`
	Reason string      `json:"reason"`
}

type statusRequest struct {
	Status model.Status `json:"status"`
	Actor  model.Actor  `json:"actor"`
	Reason string       `json:"reason"`
}

type rescheduleRequest struct {
	Date  model.Date      `json:"date"`
	Start model.TimeOfDay `json:"start"`
	Actor model.Actor     `json:"actor"`
}

type paymentRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

type reviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type appointmentResponse struct {
	ID                  string          `json:"id"`
	TenantID            string          `json:"tenant_id"`
	CustomerID          string          `json:"customer_id"`
	PetID               string          `json:"pet_id,omitempty"`
	PetSize             model.PetSize   `json:"pet_size,omitempty"`
	ServiceID           string          `json:"service_id"`
	ServiceName         string          `json:"service_name"`
	PriceCents          int64           `json:"price_cents"`
	DurationMinutes     int             `json:"duration_minutes"`
	Date                model.Date      `json:"date"`
	Start               model.TimeOfDay `json:"start"`
	End                 model.TimeOfDay `json:"end"`
	Status              model.Status    `json:"status"`
	ConfirmedByCustomer bool            `json:"confirmed_by_customer"`
	ConfirmedByCompany  bool            `json:"confirmed_by_company"`
	ConfirmedAt         *time.Time      `json:"confirmed_at,omitempty"`
	CancelReason        string          `json:"cancel_reason,omitempty"`
	CancelledBy         model.Actor     `json:"cancelled_by,omitempty"`
	CancelledAt         *time.Time      `json:"cancelled_at,omitempty"`
	ArrivedAt           *time.Time      `json:"arrived_at,omitempty"`
	StartedAt           *time.Time      `json:"started_at,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	NoShowAt            *time.Time      `json:"no_show_at,omitempty"`
	Paid                bool            `json:"paid"`
	PaidAmountCents     int64           `json:"paid_amount_cents,omitempty"`
	PaidAt              *time.Time      `json:"paid_at,omitempty"`
	Rating              int             `json:"rating,omitempty"`
	ReviewComment       string          `json:"review_comment,omitempty"`
	ReviewedAt          *time.Time      `json:"reviewed_at,omitempty"`
	Notes               string          `json:"notes,omitempty"`
	RebookOf            string          `json:"rebook_of,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:                  a.ID,
		TenantID:            a.TenantID,
		CustomerID:          a.CustomerID,
		PetID:               a.PetID,
		PetSize:             a.PetSize,
		ServiceID:           a.ServiceID,
		ServiceName:         a.ServiceName,
		PriceCents:          a.PriceCents,
		DurationMinutes:     a.DurationMinutes,
		Date:                a.Date,
		Start:               a.Start,
		End:                 a.End(),
		Status:              a.Status,
		ConfirmedByCustomer: a.ConfirmedByCustomer,
		ConfirmedByCompany:  a.ConfirmedByCompany,
		ConfirmedAt:         a.ConfirmedAt,
		CancelReason:        a.CancelReason,
		CancelledBy:         a.CancelledBy,
		CancelledAt:         a.CancelledAt,
		ArrivedAt:           a.ArrivedAt,
		StartedAt:           a.StartedAt,
		CompletedAt:         a.CompletedAt,
		NoShowAt:            a.NoShowAt,
		Paid:                a.Paid,
		PaidAmountCents:     a.PaidAmountCents,
		PaidAt:              a.PaidAt,
		Rating:              a.Rating,
		ReviewComment:       a.ReviewComment,
		ReviewedAt:          a.ReviewedAt,
		Notes:               a.Notes,
		RebookOf:            a.RebookOf,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

type historyItem struct {
	From   model.Status `json:"from,omitempty"`
	To     model.Status `json:"to"`
	Actor  model.Actor  `json:"actor"`
	Reason string       `json:"reason,omitempty"`
	At     time.Time    `json:"at"`
}

type availabilityResponse struct {
	Available   bool         `json:"available"`
	Reason      model.Reason `json:"reason,omitempty"`
	Remaining   int          `json:"remaining"`
	Suggestions []model.Slot `json:"suggestions"`
}

// Slots lists the bookable slots of a service on one day.
// GET /api/v1/services/{serviceID}/slots?date=2026-03-02&step=30
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	date, err := model.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		badRequest(w, r, "invalid date")
		return
	}
	step := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("step")); raw != "" {
		step, err = strconv.Atoi(raw)
		if err != nil || step < availability.MinStepMinutes || step > availability.MaxStepMinutes {
			badRequest(w, r, "invalid step")
			return
		}
	}

	slots, err := h.engine.AvailableSlots(r.Context(), tenantID(r), chi.URLParam(r, "serviceID"), date, step)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if slots == nil {
		slots = []model.Slot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "slots": slots})
}

// Availability answers whether a single slot can be booked.
// GET /api/v1/availability?service_id=...&date=2026-03-02&start=09:30
func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := model.ParseDate(q.Get("date"))
	if err != nil {
		badRequest(w, r, "invalid date")
		return
	}
	start, err := model.ParseTimeOfDay(q.Get("start"))
	if err != nil {
		badRequest(w, r, "invalid start")
		return
	}
	serviceID := strings.TrimSpace(q.Get("service_id"))
	if serviceID == "" {
		badRequest(w, r, "service_id is required")
		return
	}

	d, err := h.engine.CheckAvailability(r.Context(), tenantID(r), serviceID, date, start)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := availabilityResponse{Available: d.Available, Reason: d.Reason, Remaining: d.Remaining, Suggestions: d.Suggestions}
	if resp.Suggestions == nil {
		resp.Suggestions = []model.Slot{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, "invalid json body")
		return
	}
	appt, err := h.manager.Create(r.Context(), lifecycle.CreateRequest{
		TenantID:   tenantID(r),
		CustomerID: strings.TrimSpace(req.CustomerID),
		PetID:      strings.TrimSpace(req.PetID),
		PetSize:    req.PetSize,
		ServiceID:  strings.TrimSpace(req.ServiceID),
		Date:       req.Date,
		Start:      req.Start,
		Notes:      req.Notes,
		RebookOf:   strings.TrimSpace(req.RebookOf),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

// List returns the appointments of one day.
// GET /api/v1/appointments?date=2026-03-02
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	date, err := model.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		badRequest(w, r, "invalid date")
		return
	}
	appts, err := h.manager.ListByDate(r.Context(), tenantID(r), date)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "appointments": items})
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.manager.Get(r.Context(), tenantID(r), chi.URLParam(r, "appointmentID"))
	h.respond(w, r, appt, err)
}

func (h *BookingHandler) History(w http.ResponseWriter, r *http.Request) {
	changes, err := h.manager.History(r.Context(), tenantID(r), chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]historyItem, 0, len(changes))
	for _, c := range changes {
		items = append(items, historyItem{From: c.From, To: c.To, Actor: c.Actor, Reason: c.Reason, At: c.At})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": items})
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, "invalid json body")
		return
	}
	appt, err := h.manager.Confirm(r.Context(), tenantID(r), chi.URLParam(r, "appointmentID"), req.Actor)
	h.respond(w, r, appt, err)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, "invalid json body")
		return
	}
	if req.Actor == "" {
		req.Actor = model.ActorCustomer
	}
	if _, err := model.ParseActor(string(req.Actor)); err != nil {
		writeError(w, r, h.logger, model.NewValidationError("actor", err.Error()))
		return
	}
	appt, err := h.manager.Cancel(r.Context(), tenantID(r), chi.URLParam(r, "appointmentID"), strings.TrimSpace(req.Reason), req.Actor)
	h.respond(w, r, appt, err)
}

func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, "invalid json body")
		return
	}
	if _, err := model.ParseStatus(string(req.Status)); err != nil {
		writeError(w, r, h.logger, model.NewValidationError("status", err.Error()))
		return
	}
	if req.Actor == "" {
		req.Actor = model.ActorCompany
	}
	appt, err := h.manager.UpdateStatus(r.Context(), tenantID(r), chi.URLParam(r, "appointmentID"), req.Status, req.Actor, strings.TrimSpace(req.Reason))
	h.respond(w, r, appt, err)
}

func (h *BookingHandler) Arrival(w http.ResponseWriter, r *http.Request) {
	appt, err := h.manager.RegisterArrival(r.Context(), tenantID(r), chi.URLParam(r, "appointmentID"))
	h.respond(w, r, appt, err)
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, "invalid json body")
		return
	}
	if req.Actor == "" {
		req.Actor = model.ActorCustomer
	}
	appt, err := h.manager.Reschedule(r.Context(), tenantID(r), chi.URLParam(r, "appointmentID"), req.Date, req.Start, req.Actor)
	h.respond(w, r, appt, err)
}

func (h *BookingHandler) Payment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, "invalid json body")
		return
	}
	appt, err := h.manager.RegisterPayment(r.Context(), tenantID(r), chi.URLParam(r, "appointmentID"), req.AmountCents)
	h.respond(w, r, appt, err)
}

func (h *BookingHandler) Review(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, "invalid json body")
		return
	}
	appt, err := h.manager.AddReview(r.Context(), tenantID(r), chi.URLParam(r, "appointmentID"), req.Rating, strings.TrimSpace(req.Comment))
	h.respond(w, r, appt, err)
}

func (h *BookingHandler) respond(w http.ResponseWriter, r *http.Request, appt model.Appointment, err error) {
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}
