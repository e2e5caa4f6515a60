package commands

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dejobratic/opsapi/internal/engagements/domain"
	"github.com/dejobratic/opsapi/internal/engagements/metrics"
	"github.com/dejobratic/opsapi/internal/telemetry"
)

type ObservableCreateHandler struct {
	handler CreateHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableCreateHandler(handler CreateHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableCreateHandler {
	return &ObservableCreateHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableCreateHandler) Handle(ctx context.Context, cmd CreateEngagementCommand) (*domain.Engagement, error) {
	ctx, span := telemetry.StartSpan(ctx, "CreateEngagementCommand.Handle")
	defer span.End()

	start := time.Now()
	var success bool
	defer func() {
		o.metrics.RecordEngagementCreationDuration(ctx, time.Since(start).Seconds())
		o.metrics.RecordEngagementCreated(ctx, success)
	}()

	o.logger.InfoContext(ctx, "creating engagement",
		"engagement_name", cmd.Name,
		"actor", cmd.Actor,
	)

	engagement, err := o.handler.Handle(ctx, cmd)
	if engagement != nil {
		telemetry.AddSpanAttributes(span,
			attribute.String("engagement.id", engagement.ID),
			attribute.Bool("engagement.active", engagement.EndTS == nil),
		)
	}

	if err != nil {
		telemetry.RecordSpanError(span, err)
		o.logger.ErrorContext(ctx, "failed to create engagement",
			"error", err,
			"engagement_name", cmd.Name,
		)
		return engagement, err
	}

	o.logger.InfoContext(ctx, "engagement created successfully",
		"engagement_id", engagement.ID,
	)

	success = true
	telemetry.SetSpanSuccess(span)

	return engagement, nil
}
