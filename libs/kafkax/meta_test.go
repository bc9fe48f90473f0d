package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %v", got)
	}
	if SplitBrokers("") != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestExtractEventMeta_FallsBackToTopicAndKey(t *testing.T) {
	meta := ExtractEventMeta(kafka.Message{Topic: "messaging.customer.replied.v1", Key: []byte("appt-1")})
	if meta.EventType != "messaging.customer.replied.v1" {
		t.Fatalf("unexpected event type %q", meta.EventType)
	}
	if meta.EventID != "messaging.customer.replied.v1/appt-1" {
		t.Fatalf("unexpected event id %q", meta.EventID)
	}

	meta = ExtractEventMeta(kafka.Message{
		Topic: "x",
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte("evt-9")},
			{Key: HeaderTenantID, Value: []byte("tenant-1")},
		},
	})
	if meta.EventID != "evt-9" || meta.TenantID != "tenant-1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestEventMetaHeaders_CarryMetaAndTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.MapCarrier{"traceparent": traceparent})

	meta := EventMeta{EventID: "evt-1", EventType: "booking.appointment.created.v1", TenantID: "tenant-1"}
	msg := kafka.Message{Topic: meta.EventType, Headers: meta.Headers(ctx)}

	if got := ExtractEventMeta(msg); got != meta {
		t.Fatalf("meta round trip = %+v, want %+v", got, meta)
	}
	if got := HeaderValue(msg.Headers, "traceparent"); got != traceparent {
		t.Fatalf("traceparent = %q, want %q", got, traceparent)
	}
	sc := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), msg))
	if sc.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("unexpected trace id %s", sc.TraceID())
	}
}

func TestEventMetaHeaders_SkipsEmptyFields(t *testing.T) {
	headers := EventMeta{EventID: "evt-2"}.Headers(context.Background())
	if HeaderValue(headers, HeaderTenantID) != "" || HeaderValue(headers, HeaderEventID) != "evt-2" {
		t.Fatalf("unexpected headers %v", headers)
	}
}
