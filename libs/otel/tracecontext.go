package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContext is the W3C trace context stored on rows that are processed
// after the request that wrote them has returned, such as outbox events and
// recovery attempts.
type TraceContext struct {
	Traceparent string
	Tracestate  string
}

// Capture extracts the active trace context from ctx. It is zero when ctx
// carries no sampled or remote span.
func Capture(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{
		Traceparent: carrier.Get("traceparent"),
		Tracestate:  carrier.Get("tracestate"),
	}
}

func (tc TraceContext) IsZero() bool {
	return tc.Traceparent == ""
}

// Resume returns ctx continuing the stored trace. A zero TraceContext
// returns ctx unchanged.
func (tc TraceContext) Resume(ctx context.Context) context.Context {
	if tc.IsZero() {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": tc.Traceparent}
	if tc.Tracestate != "" {
		carrier["tracestate"] = tc.Tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
