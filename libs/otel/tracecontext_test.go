package otelx

import (
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContext_ResumeThenCapture(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	stored := TraceContext{Traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}
	ctx := stored.Resume(context.Background())
	if sc := trace.SpanContextFromContext(ctx); !sc.IsValid() {
		t.Fatal("expected a valid remote span context")
	}

	if got := Capture(ctx); got.Traceparent != stored.Traceparent {
		t.Fatalf("traceparent = %q, want %q", got.Traceparent, stored.Traceparent)
	}
}

func TestTraceContext_ZeroResumeIsNoop(t *testing.T) {
	ctx := context.Background()
	if got := (TraceContext{}).Resume(ctx); got != ctx {
		t.Fatal("expected the same context back")
	}
	if tc := Capture(ctx); !tc.IsZero() {
		t.Fatalf("expected no trace context, got %+v", tc)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")
	t.Setenv("DEPLOY_ENV", "staging")
	cfg, err := ConfigFromEnv("booking-service")
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.Enabled {
		t.Fatal("expected tracing disabled")
	}
	if cfg.SampleRatio != 0.25 || cfg.ServiceName != "booking-service" || cfg.Environment != "staging" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestConfigFromEnv_ReportsEveryInvalidKey(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "sometimes")
	t.Setenv("OTEL_SAMPLING_RATIO", "2")
	_, err := ConfigFromEnv("booking-service")
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, key := range []string{"OTEL_ENABLED", "OTEL_SAMPLING_RATIO"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error %q does not name %s", err, key)
		}
	}
}
