package model

import "time"

// AvailabilityWindow is a recurring weekly range in which bookings are accepted.
// Capacity is the number of appointments allowed to overlap any instant of the window.
type AvailabilityWindow struct {
	ID        string
	TenantID  string
	Weekday   time.Weekday
	Start     TimeOfDay
	End       TimeOfDay
	Capacity  int
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (w AvailabilityWindow) Interval() Interval {
	return Interval{Start: w.Start, End: w.End}
}

func (w AvailabilityWindow) Validate() error {
	v := &ValidationError{}
	if w.TenantID == "" {
		v.Add("tenant_id", "required")
	}
	if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
		v.Add("weekday", "must be between 0 and 6")
	}
	if !w.Start.Valid() || w.End < 0 || w.End > MinutesPerDay {
		v.Add("start", "must be within the day")
	}
	if w.Start >= w.End {
		v.Add("end", "must be after start")
	}
	if w.Capacity < 1 {
		v.Add("capacity", "must be at least 1")
	}
	return v.Err()
}

// BlockedDate removes a whole day, or a sub-range of it, from the bookable calendar.
type BlockedDate struct {
	ID        string
	TenantID  string
	Date      Date
	FullDay   bool
	Range     *Interval
	Reason    string
	CreatedAt time.Time
}

// Blocks reports whether the block covers any instant of iv.
func (b BlockedDate) Blocks(iv Interval) bool {
	if b.FullDay || b.Range == nil {
		return true
	}
	return b.Range.Overlaps(iv)
}

func (b BlockedDate) Validate() error {
	v := &ValidationError{}
	if b.TenantID == "" {
		v.Add("tenant_id", "required")
	}
	if b.Date.IsZero() {
		v.Add("date", "required")
	}
	if !b.FullDay {
		if b.Range == nil {
			v.Add("range", "required unless full_day is set")
		} else if b.Range.Start >= b.Range.End || !b.Range.Start.Valid() || b.Range.End > MinutesPerDay {
			v.Add("range", "start must be before end within the day")
		}
	}
	return v.Err()
}
