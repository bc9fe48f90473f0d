// Package calendar decides whether a time range on a date falls inside a
// tenant's working hours and outside its blocked dates.
package calendar

import (
	"context"
	"sort"
	"time"

	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
)

type Source interface {
	ListWindows(ctx context.Context, tenantID string, weekday time.Weekday) ([]model.AvailabilityWindow, error)
	ListBlockedDates(ctx context.Context, tenantID string, date model.Date) ([]model.BlockedDate, error)
}

type Eligibility struct {
	Eligible bool
	Reason   model.Reason
}

var eligible = Eligibility{Eligible: true}

type Rules struct {
	src Source
	loc *time.Location
	now func() time.Time
}

func NewRules(src Source, loc *time.Location, now func() time.Time) *Rules {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Rules{src: src, loc: loc, now: now}
}

// With returns a copy of r reading from src, typically an open transaction.
func (r *Rules) With(src Source) *Rules {
	cp := *r
	cp.src = src
	return &cp
}

// Day is the calendar of one tenant date: its active windows ordered by
// start, and every block registered for it.
type Day struct {
	Date    model.Date
	Windows []model.AvailabilityWindow
	Blocks  []model.BlockedDate
}

func (r *Rules) Day(ctx context.Context, tenantID string, date model.Date) (Day, error) {
	windows, err := r.src.ListWindows(ctx, tenantID, date.Weekday())
	if err != nil {
		return Day{}, err
	}
	blocks, err := r.src.ListBlockedDates(ctx, tenantID, date)
	if err != nil {
		return Day{}, err
	}
	active := make([]model.AvailabilityWindow, 0, len(windows))
	for _, w := range windows {
		if w.Active {
			active = append(active, w)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Start < active[j].Start })
	return Day{Date: date, Windows: active, Blocks: blocks}, nil
}

func (r *Rules) IsBookable(ctx context.Context, tenantID string, date model.Date, start model.TimeOfDay, durationMinutes int) (Eligibility, error) {
	day, err := r.Day(ctx, tenantID, date)
	if err != nil {
		return Eligibility{}, err
	}
	return r.Evaluate(day, model.NewInterval(start, durationMinutes)), nil
}

// Evaluate checks iv against an already loaded day. Past starts are rejected
// first, then blocks, then working hours.
func (r *Rules) Evaluate(day Day, iv model.Interval) Eligibility {
	if day.Date.At(iv.Start, r.loc).Before(r.now()) {
		return Eligibility{Reason: model.ReasonPast}
	}
	if day.Blocked(iv) {
		return Eligibility{Reason: model.ReasonBlocked}
	}
	if len(day.Covering(iv)) == 0 {
		return Eligibility{Reason: model.ReasonOutsideHours}
	}
	return eligible
}

func (d Day) Blocked(iv model.Interval) bool {
	for _, b := range d.Blocks {
		if b.Blocks(iv) {
			return true
		}
	}
	return false
}

// Covering returns the active windows that contain the whole of iv.
func (d Day) Covering(iv model.Interval) []model.AvailabilityWindow {
	var out []model.AvailabilityWindow
	for _, w := range d.Windows {
		if w.Interval().Contains(iv) {
			out = append(out, w)
		}
	}
	return out
}

// FullyBlocked reports whether nothing on the day can be booked.
func (d Day) FullyBlocked() bool {
	return len(d.Windows) == 0 || d.Blocked(model.WholeDay())
}
