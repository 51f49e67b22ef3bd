package eventbus

import (
	"context"
	"reflect"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (eventBus *LocalEventBus) startDispatchSpan(ctx context.Context, eventType reflect.Type) (context.Context, trace.Span) {
	if eventBus.tracer == nil {
		return ctx, nil
	}
	return eventBus.tracer.Start(ctx, SpanNameDispatch,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", MessagingSystemEvents),
			attribute.String("messaging.operation", "process"),
			attribute.String(AttrBusName, eventBus.name),
			attribute.String(AttrEventType, eventType.String()),
		),
	)
}

func (eventBus *LocalEventBus) endDispatchSpan(span trace.Span, dispatched bool) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.Bool(AttrDispatched, dispatched))
	span.End()
}

// recordFailure attaches a listener failure to the dispatch span carried by ctx.
func (eventBus *LocalEventBus) recordFailure(ctx context.Context, failure *ListenerError) {
	if eventBus.tracer == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(failure)
	span.SetStatus(codes.Error, failure.Error())
}
