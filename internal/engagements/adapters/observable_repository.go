package adapters

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dejobratic/opsapi/internal/database"
	"github.com/dejobratic/opsapi/internal/engagements/domain"
	"github.com/dejobratic/opsapi/internal/engagements/ports"
	"github.com/dejobratic/opsapi/internal/telemetry"
)

type ObservableRepository struct {
	repo    ports.Repository
	metrics *database.Metrics
}

func NewObservableRepository(repo ports.Repository, metrics *database.Metrics) *ObservableRepository {
	return &ObservableRepository{
		repo:    repo,
		metrics: metrics,
	}
}

func (r *ObservableRepository) Create(ctx context.Context, engagement domain.Engagement) error {
	ctx, span := telemetry.StartSpan(ctx, "EngagementRepository.Create")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("engagement.id", engagement.ID),
		attribute.String("operation", "create"),
	)

	start := time.Now()
	err := r.repo.Create(ctx, engagement)
	r.observe(ctx, "create_engagement", start, err)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (r *ObservableRepository) GetByID(ctx context.Context, id string) (*domain.Engagement, error) {
	ctx, span := telemetry.StartSpan(ctx, "EngagementRepository.GetByID")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("engagement.id", id),
		attribute.String("operation", "get_by_id"),
	)

	start := time.Now()
	engagement, err := r.repo.GetByID(ctx, id)
	r.observe(ctx, "get_engagement_by_id", start, err)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.SetSpanSuccess(span)
	return engagement, nil
}

func (r *ObservableRepository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Engagement, error) {
	ctx, span := telemetry.StartSpan(ctx, "EngagementRepository.List")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("operation", "list"),
		attribute.String("order", string(filter.Plan.Direction)),
		attribute.Int("limit", filter.Plan.Limit),
		attribute.Bool("has_cursor", filter.Plan.Cursor != nil),
		attribute.Bool("filter.active_only", filter.ActiveOnly),
	)

	start := time.Now()
	engagements, err := r.repo.List(ctx, filter)
	r.observe(ctx, "list_engagements", start, err)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.AddSpanAttributes(span, attribute.Int("result.count", len(engagements)))
	telemetry.SetSpanSuccess(span)
	return engagements, nil
}

func (r *ObservableRepository) Update(ctx context.Context, id string, patch domain.Patch) (*domain.Engagement, error) {
	ctx, span := telemetry.StartSpan(ctx, "EngagementRepository.Update")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("engagement.id", id),
		attribute.String("operation", "update"),
	)

	start := time.Now()
	engagement, err := r.repo.Update(ctx, id, patch)
	r.observe(ctx, "update_engagement", start, err)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.SetSpanSuccess(span)
	return engagement, nil
}

func (r *ObservableRepository) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "EngagementRepository.Delete")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("engagement.id", id),
		attribute.String("operation", "delete"),
	)

	start := time.Now()
	err := r.repo.Delete(ctx, id)
	r.observe(ctx, "delete_engagement", start, err)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

// observe records latency for every call and counts failures other than
// a missing row.
func (r *ObservableRepository) observe(ctx context.Context, operation string, start time.Time, err error) {
	r.metrics.RecordQuery(ctx, operation, time.Since(start).Seconds())
	if !errors.Is(err, ports.ErrNotFound) {
		r.metrics.RecordError(ctx, operation, err)
	}
}
