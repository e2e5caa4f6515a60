package adapters

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dejobratic/opsapi/internal/database"
	"github.com/dejobratic/opsapi/internal/endpoints/domain"
	"github.com/dejobratic/opsapi/internal/endpoints/ports"
	"github.com/dejobratic/opsapi/internal/telemetry"
)

type ObservableRepository struct {
	repo    ports.Repository
	metrics *database.Metrics
}

func NewObservableRepository(repo ports.Repository, metrics *database.Metrics) *ObservableRepository {
	return &ObservableRepository{repo: repo, metrics: metrics}
}

func (r *ObservableRepository) Create(ctx context.Context, endpoint domain.Endpoint) error {
	ctx, span := r.start(ctx, "Create",
		attribute.String("endpoint.id", endpoint.ID),
		attribute.String("engagement.id", endpoint.EngagementID),
	)
	defer span.End()

	start := time.Now()
	err := r.repo.Create(ctx, endpoint)
	r.finish(ctx, span, "create_endpoint", start, err)
	return err
}

func (r *ObservableRepository) GetByID(ctx context.Context, id string) (*domain.Endpoint, error) {
	ctx, span := r.start(ctx, "GetByID", attribute.String("endpoint.id", id))
	defer span.End()

	start := time.Now()
	endpoint, err := r.repo.GetByID(ctx, id)
	r.finish(ctx, span, "get_endpoint_by_id", start, err)
	return endpoint, err
}

func (r *ObservableRepository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Endpoint, error) {
	ctx, span := r.start(ctx, "List",
		attribute.String("order", string(filter.Plan.Direction)),
		attribute.Int("limit", filter.Plan.Limit),
		attribute.Bool("has_cursor", filter.Plan.Cursor != nil),
		attribute.Bool("scoped", filter.EngagementScope != nil),
		attribute.String("filter.engagement_id", filter.EngagementID),
		attribute.Bool("filter.ip", filter.IP != ""),
	)
	defer span.End()

	start := time.Now()
	endpoints, err := r.repo.List(ctx, filter)
	if err == nil {
		telemetry.AddSpanAttributes(span, attribute.Int("result.count", len(endpoints)))
	}
	r.finish(ctx, span, "list_endpoints", start, err)
	return endpoints, err
}

func (r *ObservableRepository) Update(ctx context.Context, id string, patch domain.Patch) (*domain.Endpoint, error) {
	ctx, span := r.start(ctx, "Update", attribute.String("endpoint.id", id))
	defer span.End()

	start := time.Now()
	endpoint, err := r.repo.Update(ctx, id, patch)
	r.finish(ctx, span, "update_endpoint", start, err)
	return endpoint, err
}

func (r *ObservableRepository) UpdateInventory(ctx context.Context, id string, inventory domain.Inventory) error {
	ctx, span := r.start(ctx, "UpdateInventory", attribute.String("endpoint.id", id))
	defer span.End()

	start := time.Now()
	err := r.repo.UpdateInventory(ctx, id, inventory)
	r.finish(ctx, span, "update_endpoint_inventory", start, err)
	return err
}

func (r *ObservableRepository) start(ctx context.Context, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := telemetry.StartSpan(ctx, "EndpointRepository."+method)
	telemetry.AddSpanAttributes(span, attrs...)
	return ctx, span
}

func (r *ObservableRepository) finish(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	r.metrics.RecordQuery(ctx, operation, time.Since(start).Seconds())
	if errors.Is(err, ports.ErrNotFound) || errors.Is(err, ports.ErrEngagementNotFound) {
		return
	}
	r.metrics.RecordError(ctx, operation, err)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		return
	}
	telemetry.SetSpanSuccess(span)
}
