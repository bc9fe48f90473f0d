package lifecycle

import (
	"fmt"

	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
)

func slotText(a model.Appointment) string {
	return fmt.Sprintf("%s on %s at %s", a.ServiceName, a.Date, a.Start)
}

func createdMessage(a model.Appointment) string {
	return fmt.Sprintf("We received your booking for %s. We'll let you know once it's confirmed.", slotText(a))
}

func confirmedMessage(a model.Appointment) string {
	return fmt.Sprintf("Your appointment for %s is confirmed. See you soon!", slotText(a))
}

func cancelledMessage(a model.Appointment) string {
	return fmt.Sprintf("Your appointment for %s has been cancelled.", slotText(a))
}

func rescheduledMessage(a model.Appointment) string {
	return fmt.Sprintf("Your appointment has been moved to %s.", slotText(a))
}
