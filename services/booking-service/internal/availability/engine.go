// Package availability answers whether a service can be booked at a given
// time and proposes alternatives when it cannot.
package availability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
)

type Source interface {
	calendar.Source
	GetService(ctx context.Context, tenantID, serviceID string) (model.Service, error)
	ListHolding(ctx context.Context, tenantID string, date model.Date) ([]model.Appointment, error)
}

const (
	DefaultStepMinutes     = 30
	DefaultSuggestionDays  = 7
	DefaultSuggestionCount = 3
	MinStepMinutes         = 5
	MaxStepMinutes         = 240
)

type Config struct {
	StepMinutes     int
	SuggestionDays  int
	SuggestionCount int
	Location        *time.Location
	Now             func() time.Time
}

type Engine struct {
	src    Source
	rules  *calendar.Rules
	cfg    Config
	logger *slog.Logger
}

func New(src Source, cfg Config, logger *slog.Logger) *Engine {
	if cfg.StepMinutes <= 0 {
		cfg.StepMinutes = DefaultStepMinutes
	}
	if cfg.SuggestionDays <= 0 {
		cfg.SuggestionDays = DefaultSuggestionDays
	}
	if cfg.SuggestionCount <= 0 {
		cfg.SuggestionCount = DefaultSuggestionCount
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		src:    src,
		rules:  calendar.NewRules(src, cfg.Location, cfg.Now),
		cfg:    cfg,
		logger: logger,
	}
}

// With returns an engine reading through src, typically an open transaction,
// so checks made under a day lock see the transaction's own writes.
func (e *Engine) With(src Source) *Engine {
	cp := *e
	cp.src = src
	cp.rules = e.rules.With(src)
	return &cp
}

// Today is the current date in the engine's time zone.
func (e *Engine) Today() model.Date {
	return model.DateOf(e.cfg.Now().In(e.cfg.Location))
}

// Decision is the outcome of an availability check. Suggestions is only
// filled by CheckAvailability and is never nil on a rejection.
type Decision struct {
	Available   bool
	Reason      model.Reason
	Remaining   int
	Service     model.Service
	Suggestions []model.Slot
}

// Err converts a rejection into an *model.AvailabilityError.
func (d Decision) Err() error {
	if d.Available {
		return nil
	}
	suggestions := d.Suggestions
	if suggestions == nil {
		suggestions = []model.Slot{}
	}
	return &model.AvailabilityError{Reason: d.Reason, Suggestions: suggestions}
}

// CheckAvailability runs the full booking check for one slot: the service must
// exist and be active, the calendar must allow the slot and capacity must
// remain. A missing service returns model.ErrNotFound.
func (e *Engine) CheckAvailability(ctx context.Context, tenantID, serviceID string, date model.Date, start model.TimeOfDay) (Decision, error) {
	svc, err := e.src.GetService(ctx, tenantID, serviceID)
	if err != nil {
		return Decision{}, err
	}
	if !svc.Active {
		return Decision{Reason: model.ReasonServiceInactive, Service: svc, Suggestions: []model.Slot{}}, nil
	}

	d, err := e.Evaluate(ctx, tenantID, svc.DurationMinutes, date, start, "")
	if err != nil {
		return Decision{}, err
	}
	d.Service = svc
	if d.Available {
		return d, nil
	}

	d.Suggestions, err = e.SuggestAlternatives(ctx, SuggestQuery{
		TenantID:        tenantID,
		DurationMinutes: svc.DurationMinutes,
		From:            date,
		Skip:            &model.Slot{Date: date, Start: start},
	})
	if err != nil {
		return Decision{}, err
	}
	e.logger.Debug("slot rejected",
		"tenant_id", tenantID,
		"service_id", serviceID,
		"date", date.String(),
		"start", start.String(),
		"reason", string(d.Reason),
		"suggestions", len(d.Suggestions),
	)
	return d, nil
}

// Evaluate checks calendar rules and capacity for a slot of the given
// duration without looking at the service. excludeID is left out of the
// capacity count, which lets a reschedule ignore its own current booking.
func (e *Engine) Evaluate(ctx context.Context, tenantID string, durationMinutes int, date model.Date, start model.TimeOfDay, excludeID string) (Decision, error) {
	day, err := e.rules.Day(ctx, tenantID, date)
	if err != nil {
		return Decision{}, err
	}
	iv := model.NewInterval(start, durationMinutes)
	if elig := e.rules.Evaluate(day, iv); !elig.Eligible {
		return Decision{Reason: elig.Reason}, nil
	}

	appts, err := e.src.ListHolding(ctx, tenantID, date)
	if err != nil {
		return Decision{}, err
	}
	remaining := Remaining(day.Windows, appts, iv, excludeID)
	if remaining <= 0 {
		return Decision{Reason: model.ReasonCapacity}, nil
	}
	return Decision{Available: true, Remaining: remaining}, nil
}

func (e *Engine) RemainingCapacity(ctx context.Context, tenantID string, date model.Date, start model.TimeOfDay, durationMinutes int, excludeID string) (int, error) {
	day, err := e.rules.Day(ctx, tenantID, date)
	if err != nil {
		return 0, err
	}
	appts, err := e.src.ListHolding(ctx, tenantID, date)
	if err != nil {
		return 0, err
	}
	return Remaining(day.Windows, appts, model.NewInterval(start, durationMinutes), excludeID), nil
}

type SuggestQuery struct {
	TenantID        string
	DurationMinutes int
	From            model.Date
	// Days is how many days after From are scanned. Zero uses the engine default.
	Days int
	// Until, when set, is the last date scanned and takes precedence over Days.
	Until model.Date
	// Limit caps the number of slots. Zero uses the engine default.
	Limit int
	// Skip is never suggested, usually the slot that was just rejected.
	Skip *model.Slot
}

// SuggestAlternatives scans From and the following days in order and returns
// the first bookable slots with capacity left, ordered by date then start.
// The result is empty, never nil, when nothing is free.
func (e *Engine) SuggestAlternatives(ctx context.Context, q SuggestQuery) ([]model.Slot, error) {
	days := q.Days
	if days <= 0 {
		days = e.cfg.SuggestionDays
	}
	limit := q.Limit
	if limit <= 0 {
		limit = e.cfg.SuggestionCount
	}

	last := q.From.AddDays(days)
	if !q.Until.IsZero() {
		last = q.Until
	}

	out := make([]model.Slot, 0, limit)
	for date := q.From; !date.After(last) && len(out) < limit; date = date.AddDays(1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slots, err := e.daySlots(ctx, q.TenantID, date, q.DurationMinutes, e.cfg.StepMinutes, limit-len(out), q.Skip)
		if err != nil {
			return nil, err
		}
		out = append(out, slots...)
	}
	return out, nil
}

// AvailableSlots lists every bookable start on date for the service, with the
// capacity left at each. stepMinutes of zero uses the configured step.
func (e *Engine) AvailableSlots(ctx context.Context, tenantID, serviceID string, date model.Date, stepMinutes int) ([]model.Slot, error) {
	if stepMinutes == 0 {
		stepMinutes = e.cfg.StepMinutes
	}
	if stepMinutes < MinStepMinutes || stepMinutes > MaxStepMinutes {
		return nil, model.NewValidationError("step_minutes", fmt.Sprintf("must be between %d and %d", MinStepMinutes, MaxStepMinutes))
	}
	svc, err := e.src.GetService(ctx, tenantID, serviceID)
	if err != nil {
		return nil, err
	}
	if !svc.Active {
		return []model.Slot{}, nil
	}
	return e.daySlots(ctx, tenantID, date, svc.DurationMinutes, stepMinutes, 0, nil)
}

// daySlots returns up to limit free slots on date; limit <= 0 means all.
func (e *Engine) daySlots(ctx context.Context, tenantID string, date model.Date, durationMinutes, stepMinutes, limit int, skip *model.Slot) ([]model.Slot, error) {
	day, err := e.rules.Day(ctx, tenantID, date)
	if err != nil {
		return nil, err
	}
	out := []model.Slot{}
	if day.FullyBlocked() {
		return out, nil
	}
	appts, err := e.src.ListHolding(ctx, tenantID, date)
	if err != nil {
		return nil, err
	}
	for _, start := range DayCandidates(day.Windows, durationMinutes, stepMinutes) {
		if skip != nil && skip.Same(date, start) {
			continue
		}
		iv := model.NewInterval(start, durationMinutes)
		if !e.rules.Evaluate(day, iv).Eligible {
			continue
		}
		remaining := Remaining(day.Windows, appts, iv, "")
		if remaining <= 0 {
			continue
		}
		out = append(out, model.Slot{Date: date, Start: start, End: iv.End, Remaining: remaining})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
