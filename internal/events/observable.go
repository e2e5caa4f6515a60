package events

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dejobratic/opsapi/internal/telemetry"
)

type ObservablePublisher struct {
	publisher Publisher
	metrics   *Metrics
}

func NewObservablePublisher(publisher Publisher, metrics *Metrics) *ObservablePublisher {
	return &ObservablePublisher{
		publisher: publisher,
		metrics:   metrics,
	}
}

func (p *ObservablePublisher) Publish(ctx context.Context, event Event) error {
	ctx, span := telemetry.StartSpan(ctx, "Publisher.Publish")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("event.type", string(event.Type)),
		attribute.String("event.resource_id", event.ResourceID),
	)

	start := time.Now()
	err := p.publisher.Publish(ctx, event)
	p.metrics.RecordPublish(ctx, event.Type, time.Since(start).Seconds(), err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}
