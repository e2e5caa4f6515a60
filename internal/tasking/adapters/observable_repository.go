package adapters

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dejobratic/opsapi/internal/database"
	"github.com/dejobratic/opsapi/internal/tasking/domain"
	"github.com/dejobratic/opsapi/internal/tasking/ports"
	"github.com/dejobratic/opsapi/internal/telemetry"
)

type ObservableRepository struct {
	repo    ports.Repository
	metrics *database.Metrics
}

func NewObservableRepository(repo ports.Repository, metrics *database.Metrics) *ObservableRepository {
	return &ObservableRepository{repo: repo, metrics: metrics}
}

func (r *ObservableRepository) Create(ctx context.Context, task domain.Task) error {
	ctx, span := r.start(ctx, "Create", attribute.String("task.id", task.ID), attribute.String("task.permission", string(task.Permission)))
	defer span.End()

	start := time.Now()
	err := r.repo.Create(ctx, task)
	r.finish(ctx, span, "create_task", start, err)
	return err
}

func (r *ObservableRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	ctx, span := r.start(ctx, "GetByID", attribute.String("task.id", id))
	defer span.End()

	start := time.Now()
	task, err := r.repo.GetByID(ctx, id)
	r.finish(ctx, span, "get_task_by_id", start, err)
	return task, err
}

func (r *ObservableRepository) GetByLongName(ctx context.Context, name string) (*domain.Task, error) {
	ctx, span := r.start(ctx, "GetByLongName", attribute.String("task.long_name", name))
	defer span.End()

	start := time.Now()
	task, err := r.repo.GetByLongName(ctx, name)
	r.finish(ctx, span, "get_task_by_long_name", start, err)
	return task, err
}

func (r *ObservableRepository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Task, error) {
	ctx, span := r.start(ctx, "List",
		attribute.String("order", string(filter.Plan.Direction)),
		attribute.Int("limit", filter.Plan.Limit),
		attribute.Bool("has_cursor", filter.Plan.Cursor != nil),
		attribute.String("filter.min_role", string(filter.MinRole)),
	)
	defer span.End()

	start := time.Now()
	tasks, err := r.repo.List(ctx, filter)
	if err == nil {
		telemetry.AddSpanAttributes(span, attribute.Int("result.count", len(tasks)))
	}
	r.finish(ctx, span, "list_tasks", start, err)
	return tasks, err
}

func (r *ObservableRepository) Update(ctx context.Context, id string, patch domain.Patch) (*domain.Task, error) {
	ctx, span := r.start(ctx, "Update", attribute.String("task.id", id))
	defer span.End()

	start := time.Now()
	task, err := r.repo.Update(ctx, id, patch)
	r.finish(ctx, span, "update_task", start, err)
	return task, err
}

func (r *ObservableRepository) Delete(ctx context.Context, id string) error {
	ctx, span := r.start(ctx, "Delete", attribute.String("task.id", id))
	defer span.End()

	start := time.Now()
	err := r.repo.Delete(ctx, id)
	r.finish(ctx, span, "delete_task", start, err)
	return err
}

func (r *ObservableRepository) start(ctx context.Context, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := telemetry.StartSpan(ctx, "TaskRepository."+method)
	telemetry.AddSpanAttributes(span, attrs...)
	return ctx, span
}

// finish records latency and outcome. A missing row is an answer, not a
// failure, so it is neither counted nor marked on the span.
func (r *ObservableRepository) finish(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	r.metrics.RecordQuery(ctx, operation, time.Since(start).Seconds())
	if errors.Is(err, ports.ErrNotFound) {
		return
	}
	r.metrics.RecordError(ctx, operation, err)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		return
	}
	telemetry.SetSpanSuccess(span)
}
