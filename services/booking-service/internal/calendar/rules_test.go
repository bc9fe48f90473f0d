package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
)

type fakeSource struct {
	windows []model.AvailabilityWindow
	blocks  []model.BlockedDate
	err     error
}

func (f *fakeSource) ListWindows(_ context.Context, tenantID string, weekday time.Weekday) ([]model.AvailabilityWindow, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.AvailabilityWindow
	for _, w := range f.windows {
		if w.TenantID == tenantID && w.Weekday == weekday {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeSource) ListBlockedDates(_ context.Context, tenantID string, date model.Date) ([]model.BlockedDate, error) {
	var out []model.BlockedDate
	for _, b := range f.blocks {
		if b.TenantID == tenantID && b.Date == date {
			out = append(out, b)
		}
	}
	return out, nil
}

var (
	monday = model.Date{Year: 2026, Month: time.March, Day: 2}
	clock  = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
)

func at(h, m int) model.TimeOfDay { return model.NewTimeOfDay(h, m) }

func TestIsBookable(t *testing.T) {
	src := &fakeSource{
		windows: []model.AvailabilityWindow{
			{ID: "w1", TenantID: "t1", Weekday: time.Monday, Start: at(9, 0), End: at(12, 0), Capacity: 1, Active: true},
			{ID: "w2", TenantID: "t1", Weekday: time.Monday, Start: at(13, 0), End: at(17, 0), Capacity: 1, Active: false},
		},
		blocks: []model.BlockedDate{
			{TenantID: "t1", Date: monday, Range: &model.Interval{Start: at(11, 0), End: at(11, 30)}},
		},
	}
	rules := NewRules(src, time.UTC, clock)

	cases := []struct {
		name   string
		tenant string
		date   model.Date
		start  model.TimeOfDay
		dur    int
		want   Eligibility
	}{
		{"inside window", "t1", monday, at(9, 0), 60, Eligibility{Eligible: true}},
		{"ends exactly at window end", "t1", monday, at(11, 30), 30, Eligibility{Eligible: true}},
		{"crosses window end", "t1", monday, at(11, 30), 60, Eligibility{Reason: model.ReasonOutsideHours}},
		{"inactive window", "t1", monday, at(14, 0), 60, Eligibility{Reason: model.ReasonOutsideHours}},
		{"partial block", "t1", monday, at(10, 30), 60, Eligibility{Reason: model.ReasonBlocked}},
		{"ends at block start", "t1", monday, at(10, 0), 60, Eligibility{Eligible: true}},
		{"other tenant", "t2", monday, at(9, 0), 60, Eligibility{Reason: model.ReasonOutsideHours}},
		{"past", "t1", model.Date{Year: 2026, Month: time.February, Day: 23}, at(9, 0), 60, Eligibility{Reason: model.ReasonPast}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := rules.IsBookable(context.Background(), tc.tenant, tc.date, tc.start, tc.dur)
			if err != nil {
				t.Fatalf("IsBookable: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestIsBookable_FullDayBlock(t *testing.T) {
	src := &fakeSource{
		windows: []model.AvailabilityWindow{{TenantID: "t1", Weekday: time.Monday, Start: at(9, 0), End: at(17, 0), Capacity: 3, Active: true}},
		blocks:  []model.BlockedDate{{TenantID: "t1", Date: monday, FullDay: true, Reason: "holiday"}},
	}
	rules := NewRules(src, time.UTC, clock)
	got, err := rules.IsBookable(context.Background(), "t1", monday, at(9, 0), 30)
	if err != nil {
		t.Fatalf("IsBookable: %v", err)
	}
	if got.Eligible || got.Reason != model.ReasonBlocked {
		t.Fatalf("expected blocked, got %+v", got)
	}

	day, _ := rules.Day(context.Background(), "t1", monday)
	if !day.FullyBlocked() {
		t.Fatal("day should be fully blocked")
	}
}

func TestIsBookable_SourceError(t *testing.T) {
	rules := NewRules(&fakeSource{err: errors.New("db down")}, time.UTC, clock)
	if _, err := rules.IsBookable(context.Background(), "t1", monday, at(9, 0), 30); err == nil {
		t.Fatal("expected error")
	}
}

func TestRejectOverlappingWindows(t *testing.T) {
	existing := []model.AvailabilityWindow{
		{ID: "w1", TenantID: "t1", Weekday: time.Monday, Start: at(9, 0), End: at(12, 0), Capacity: 1, Active: true},
	}
	adjacent := model.AvailabilityWindow{ID: "w2", Weekday: time.Monday, Start: at(12, 0), End: at(14, 0), Active: true}
	if err := RejectOverlappingWindows(existing, adjacent); err != nil {
		t.Fatalf("adjacent windows must be accepted: %v", err)
	}

	overlapping := model.AvailabilityWindow{ID: "w3", Weekday: time.Monday, Start: at(11, 0), End: at(13, 0), Active: true}
	var v *model.ValidationError
	if err := RejectOverlappingWindows(existing, overlapping); !errors.As(err, &v) {
		t.Fatalf("expected validation error, got %v", err)
	}

	self := existing[0]
	self.End = at(13, 0)
	if err := RejectOverlappingWindows(existing, self); err != nil {
		t.Fatalf("a window must not conflict with itself: %v", err)
	}
}
