package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/underbots/ipcbus/internal/testutils"
)

func TestLoadTracingConfigFromEnv(t *testing.T) {
	testutils.ClearBusEnv(t)
	t.Setenv("PUBSUB_TRACING_ENABLED", "true")
	t.Setenv("PUBSUB_TRACING_INSTANCE", "gui")
	t.Setenv("PUBSUB_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("PUBSUB_TRACING_SERVICE_NAME", "busctl")
	t.Setenv("PUBSUB_TRACING_ZIPKIN_URL", "http://zipkin:9411/api/v2/spans")

	cfg, err := LoadTracingConfigFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "busctl", cfg.ServiceName)
	assert.Equal(t, "http://zipkin:9411/api/v2/spans", cfg.ZipkinURL)
	assert.Equal(t, "gui", cfg.Instance)
	assert.Equal(t, 0.25, cfg.SampleRatio)

	t.Setenv("PUBSUB_TRACING_SAMPLE_RATIO", "1.5")
	_, err = LoadTracingConfigFromEnv()
	assert.Error(t, err)
	t.Setenv("PUBSUB_TRACING_SAMPLE_RATIO", "1")

	t.Setenv("PUBSUB_TRACING_ENABLED", "maybe")
	_, err = LoadTracingConfigFromEnv()
	assert.Error(t, err)
}

func TestSetupOTelDisabled(t *testing.T) {
	tracer, cleanup, err := SetupOTel(context.Background(), DefaultTracingConfig())
	require.NoError(t, err)
	require.NotNil(t, tracer)
	cleanup()
}

func TestTracerProviderResource(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	cfg := DefaultTracingConfig()
	cfg.ServiceName = "gui"
	cfg.Instance = "gui-1"
	cfg.AddressPrefix = "ipc:///tmp/underbots_zmq_"

	tp, err := newTracerProvider(context.Background(), cfg, exporter)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := startPublishSpan(context.Background(), tp.Tracer(tracerName), "world")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "pubsub.publish.world", spans[0].Name)

	attrs := spans[0].Resource.Set()
	for key, want := range map[attribute.Key]string{
		"service.name":          "gui",
		"service.instance.id":   "gui-1",
		"messaging.system":      "ipcbus",
		"ipcbus.address_prefix": "ipc:///tmp/underbots_zmq_",
	} {
		got, ok := attrs.Value(key)
		if assert.True(t, ok, key) {
			assert.Equal(t, want, got.AsString(), key)
		}
	}
}

func TestTracerProviderSampleRatio(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	cfg := DefaultTracingConfig()
	cfg.SampleRatio = 0

	tp, err := newTracerProvider(context.Background(), cfg, exporter)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	for range 10 {
		_, span := startPublishSpan(context.Background(), tp.Tracer(tracerName), "world")
		span.End()
	}
	require.NoError(t, tp.ForceFlush(context.Background()))
	assert.Empty(t, exporter.GetSpans())
}

func TestPublishAndDispatchSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	b := newTestBus(t, WithTracer(tp.Tracer(tracerName)))

	done := make(chan struct{})
	require.NoError(t, RegisterCallback(b, "traced", func(Metrics) { close(done) }))
	require.NoError(t, b.Start())
	require.NoError(t, b.Publish("traced", Metrics{Value: 1}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	require.Eventually(t, func() bool {
		names := map[string]bool{}
		for _, span := range recorder.Ended() {
			names[span.Name()] = true
		}
		return names["pubsub.publish.traced"] && names["pubsub.dispatch.traced"]
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPanicRecordedOnDispatchSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	b := newTestBus(t, WithTracer(tp.Tracer(tracerName)))
	require.NoError(t, RegisterCallback(b, "traced_panic", func(Metrics) { panic("boom") }))
	require.NoError(t, b.Start())
	require.NoError(t, b.Publish("traced_panic", Metrics{}))

	require.Eventually(t, func() bool {
		for _, span := range recorder.Ended() {
			if span.Name() == "pubsub.dispatch.traced_panic" {
				return span.Status().Code == codes.Error
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}
