package otelx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/md-rashed-zaman/groomly/libs/config"
)

type Config struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string // collector host:port
	SampleRatio  float64
}

// ConfigFromEnv reads OTEL_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT,
// OTEL_SAMPLING_RATIO and DEPLOY_ENV. Every invalid key is reported.
func ConfigFromEnv(serviceName string) (Config, error) {
	cfg := Config{
		ServiceName:  serviceName,
		Environment:  config.String("DEPLOY_ENV", "local"),
		OTLPEndpoint: config.String("OTEL_EXPORTER_OTLP_ENDPOINT", "jaeger:4317"),
	}
	var enabledErr, ratioErr error
	cfg.Enabled, enabledErr = config.Bool("OTEL_ENABLED", true)
	cfg.SampleRatio, ratioErr = config.Ratio("OTEL_SAMPLING_RATIO", 1)
	return cfg, errors.Join(enabledErr, ratioErr)
}

// Setup installs the W3C propagators and, when tracing is enabled, a global
// tracer provider exporting over OTLP/gRPC. The returned func flushes pending
// spans and must run during shutdown.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter %s: %w", cfg.OTLPEndpoint, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
