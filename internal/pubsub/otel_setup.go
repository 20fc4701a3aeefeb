package pubsub

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "ipcbus-pubsub"

// TracingConfig holds configuration for OpenTelemetry tracing
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	// Instance tells apart processes sharing one bus, such as "gui" and "ai".
	Instance string
	// AddressPrefix is recorded on the resource so traces from different
	// buses on one host can be separated.
	AddressPrefix string
	ZipkinURL     string
	// SampleRatio is the fraction of publish traces kept. Dispatch spans
	// follow their parent.
	SampleRatio float64
}

// DefaultTracingConfig returns a default tracing configuration
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:     false,
		ServiceName: "ipcbus",
		ZipkinURL:   "http://localhost:9411/api/v2/spans",
		SampleRatio: 1,
	}
}

// SetupOTel initializes OpenTelemetry with a Zipkin exporter for publish
// and dispatch spans. If config.Enabled is false, it returns a no-op tracer.
// The returned cleanup flushes pending spans.
func SetupOTel(ctx context.Context, config TracingConfig) (trace.Tracer, func(), error) {
	if !config.Enabled {
		return noop.NewTracerProvider().Tracer(tracerName), func() {}, nil
	}

	exporter, err := zipkin.New(config.ZipkinURL)
	if err != nil {
		return nil, nil, err
	}
	tp, err := newTracerProvider(ctx, config, exporter)
	if err != nil {
		return nil, nil, err
	}
	otel.SetTracerProvider(tp)

	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			slog.Error("Failed to shut down tracer provider", "error", err)
		}
	}
	return tp.Tracer(tracerName), cleanup, nil
}

// newTracerProvider batches spans into exporter, sampling root spans at
// config.SampleRatio.
func newTracerProvider(ctx context.Context, config TracingConfig, exporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", config.ServiceName),
		attribute.String("messaging.system", "ipcbus"),
	}
	if config.Instance != "" {
		attrs = append(attrs, attribute.String("service.instance.id", config.Instance))
	}
	if config.AddressPrefix != "" {
		attrs = append(attrs, attribute.String("ipcbus.address_prefix", config.AddressPrefix))
	}

	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SampleRatio))),
	), nil
}
