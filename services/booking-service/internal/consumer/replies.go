package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/groomly/libs/kafkax"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

// CustomerRepliedTopic carries replies to recovery messages.
const CustomerRepliedTopic = "messaging.customer.replied.v1"

type ResponseMarker interface {
	MarkResponded(ctx context.Context, tx storage.Tx, tenantID, appointmentID string, at time.Time) (bool, error)
}

type customerReplied struct {
	TenantID      string    `json:"tenant_id"`
	AppointmentID string    `json:"appointment_id"`
	CustomerID    string    `json:"customer_id"`
	RepliedAt     time.Time `json:"replied_at"`
}

// RepliesHandler stops recovery for the appointment a customer replied about.
// Malformed messages are logged and dropped so they do not block the partition.
func RepliesHandler(marker ResponseMarker, logger *slog.Logger) Handler {
	return func(ctx context.Context, tx storage.Tx, msg kafka.Message) error {
		var evt customerReplied
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.WarnContext(ctx, "invalid customer reply payload", "err", err, "offset", msg.Offset)
			return nil
		}
		if evt.TenantID == "" {
			evt.TenantID = kafkax.HeaderValue(msg.Headers, kafkax.HeaderTenantID)
		}
		if evt.TenantID == "" || evt.AppointmentID == "" {
			logger.WarnContext(ctx, "customer reply without tenant or appointment", "offset", msg.Offset)
			return nil
		}

		marked, err := marker.MarkResponded(ctx, tx, evt.TenantID, evt.AppointmentID, evt.RepliedAt)
		if err != nil {
			return fmt.Errorf("mark responded: %w", err)
		}
		if marked {
			logger.InfoContext(ctx, "recovery stopped by customer reply",
				"tenant_id", evt.TenantID,
				"appointment_id", evt.AppointmentID,
			)
		}
		return nil
	}
}
