package pubsub

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func startPublishSpan(ctx context.Context, tracer trace.Tracer, topic string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pubsub.publish."+topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "ipcbus"),
			attribute.String("messaging.operation", "publish"),
			attribute.String("messaging.destination", topic),
		),
	)
}

func startDispatchSpan(ctx context.Context, tracer trace.Tracer, topic string, callbacks int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pubsub.dispatch."+topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "ipcbus"),
			attribute.String("messaging.operation", "process"),
			attribute.String("messaging.destination", topic),
			attribute.Int("messaging.callbacks", callbacks),
		),
	)
}

func setFrameSize(span trace.Span, n int) {
	span.SetAttributes(attribute.Int("messaging.message_payload_size_bytes", n))
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
