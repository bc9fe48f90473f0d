package availability

import (
	"iter"
	"slices"

	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
)

// Candidates yields start times in window spaced step minutes apart for which
// a booking of the given duration still ends inside the window. The sequence
// is lazy and can be ranged over any number of times.
func Candidates(window model.Interval, durationMinutes, stepMinutes int) iter.Seq[model.TimeOfDay] {
	return func(yield func(model.TimeOfDay) bool) {
		if durationMinutes <= 0 || stepMinutes <= 0 {
			return
		}
		for t := window.Start; t.Add(durationMinutes) <= window.End; t = t.Add(stepMinutes) {
			if !yield(t) {
				return
			}
		}
	}
}

// DayCandidates merges the candidates of every active window into one sorted
// list without duplicates.
func DayCandidates(windows []model.AvailabilityWindow, durationMinutes, stepMinutes int) []model.TimeOfDay {
	var out []model.TimeOfDay
	for _, w := range windows {
		if !w.Active {
			continue
		}
		out = slices.AppendSeq(out, Candidates(w.Interval(), durationMinutes, stepMinutes))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Remaining is the capacity left for iv: the summed capacity of the active
// windows containing iv minus the capacity-holding appointments overlapping
// it. excludeID leaves one appointment out of the count.
func Remaining(windows []model.AvailabilityWindow, appts []model.Appointment, iv model.Interval, excludeID string) int {
	capacity := 0
	for _, w := range windows {
		if w.Active && w.Interval().Contains(iv) {
			capacity += w.Capacity
		}
	}
	if capacity == 0 {
		return 0
	}
	occupied := 0
	for _, a := range appts {
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		if a.Status.HoldsCapacity() && a.Interval().Overlaps(iv) {
			occupied++
		}
	}
	return max(0, capacity-occupied)
}
