package recovery

import (
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
)

func offerMessage(appt model.Appointment, slots []model.Slot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "We're sorry your %s on %s couldn't happen.", appt.ServiceName, appt.Date)
	if len(slots) == 0 {
		b.WriteString(" Reply to this message and we'll find a new time for you.")
		return b.String()
	}
	b.WriteString(" Here are a few times we can still fit you in:")
	writeSlots(&b, slots)
	return b.String()
}

func nudgeMessage(appt model.Appointment, slots []model.Slot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Still looking for a new time for your %s?", appt.ServiceName)
	if len(slots) == 0 {
		b.WriteString(" Reply and we'll help you rebook.")
		return b.String()
	}
	b.WriteString(" These times are still available:")
	writeSlots(&b, slots)
	return b.String()
}

func writeSlots(b *strings.Builder, slots []model.Slot) {
	for _, s := range slots {
		fmt.Fprintf(b, "\n- %s %s (%s)", s.Date, s.Start, s.Date.Weekday())
	}
}
