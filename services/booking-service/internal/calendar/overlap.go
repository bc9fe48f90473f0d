package calendar

import (
	"fmt"

	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
)

// RejectOverlappingWindows refuses a window that overlaps another active
// window of the same weekday. Overlapping windows are otherwise legal and
// add up as independent capacity pools; tenants that want a single pool per
// time range enable this check.
func RejectOverlappingWindows(existing []model.AvailabilityWindow, candidate model.AvailabilityWindow) error {
	if !candidate.Active {
		return nil
	}
	for _, w := range existing {
		if w.ID == candidate.ID || !w.Active || w.Weekday != candidate.Weekday {
			continue
		}
		if w.Interval().Overlaps(candidate.Interval()) {
			return model.NewValidationError("start", fmt.Sprintf("overlaps window %s (%s)", w.ID, w.Interval()))
		}
	}
	return nil
}
