package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const MinutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time expressed as minutes since local midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay accepts "HH:MM" (and "HH:MM:SS", seconds ignored).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return NewTimeOfDay(h, m), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < MinutesPerDay
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Interval is a half-open [Start, End) range within a single day.
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

func NewInterval(start TimeOfDay, durationMinutes int) Interval {
	return Interval{Start: start, End: start.Add(durationMinutes)}
}

// WholeDay covers every instant of a day.
func WholeDay() Interval {
	return Interval{Start: 0, End: MinutesPerDay}
}

// Overlaps reports whether the intervals share at least one instant.
// Adjacent intervals ([a,b) and [b,c)) do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Contains reports whether o lies entirely inside i.
func (i Interval) Contains(o Interval) bool {
	return i.Start <= o.Start && o.End <= i.End
}

func (i Interval) String() string {
	return i.Start.String() + "-" + i.End.String()
}

// Date is a calendar day without a time or location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	return DateOf(t), nil
}

// Time returns midnight of the day in UTC.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// At returns the instant the wall-clock time t occurs on d in loc.
func (d Date) At(t TimeOfDay, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, t.Hour(), t.Minute(), 0, 0, loc)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) Before(o Date) bool {
	return d.Time().Before(o.Time())
}

func (d Date) After(o Date) bool {
	return d.Time().After(o.Time())
}

func (d Date) String() string {
	return d.Time().Format(dateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	v, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
