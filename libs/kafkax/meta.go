package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

// Header keys carried on every event published from the outbox.
const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
	HeaderTenantID  = "tenant_id"
)

// EventMeta is the canonical metadata carried on Kafka messages across services.
type EventMeta struct {
	EventID   string
	EventType string
	TenantID  string
}

func ExtractEventMeta(msg kafka.Message) EventMeta {
	eventID := HeaderValue(msg.Headers, HeaderEventID)
	eventType := HeaderValue(msg.Headers, HeaderEventType)
	if eventID == "" {
		eventID = msg.Topic + "/" + string(msg.Key)
	}
	if eventType == "" {
		eventType = msg.Topic
	}
	return EventMeta{
		EventID:   eventID,
		EventType: eventType,
		TenantID:  HeaderValue(msg.Headers, HeaderTenantID),
	}
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
