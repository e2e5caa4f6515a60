package adapters

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dejobratic/opsapi/internal/agents/domain"
	"github.com/dejobratic/opsapi/internal/agents/ports"
	"github.com/dejobratic/opsapi/internal/database"
	"github.com/dejobratic/opsapi/internal/telemetry"
)

type ObservableRepository struct {
	repo    ports.Repository
	metrics *database.Metrics
}

func NewObservableRepository(repo ports.Repository, metrics *database.Metrics) *ObservableRepository {
	return &ObservableRepository{repo: repo, metrics: metrics}
}

func (r *ObservableRepository) Create(ctx context.Context, agent domain.Agent) error {
	ctx, span := r.start(ctx, "Create",
		attribute.String("agent.id", agent.ID),
		attribute.String("agent.configuration_id", agent.ConfigurationID),
	)
	defer span.End()

	start := time.Now()
	err := r.repo.Create(ctx, agent)
	r.finish(ctx, span, "create_agent", start, err)
	return err
}

func (r *ObservableRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	ctx, span := r.start(ctx, "GetByID", attribute.String("agent.id", id))
	defer span.End()

	start := time.Now()
	agent, err := r.repo.GetByID(ctx, id)
	r.finish(ctx, span, "get_agent_by_id", start, err)
	return agent, err
}

func (r *ObservableRepository) RecordCheckIn(ctx context.Context, id string, at time.Time) (*domain.Agent, error) {
	ctx, span := r.start(ctx, "RecordCheckIn", attribute.String("agent.id", id))
	defer span.End()

	start := time.Now()
	agent, err := r.repo.RecordCheckIn(ctx, id, at)
	r.finish(ctx, span, "record_agent_check_in", start, err)
	return agent, err
}

func (r *ObservableRepository) MarkUninstalled(ctx context.Context, id string, at time.Time) (*domain.Agent, error) {
	ctx, span := r.start(ctx, "MarkUninstalled", attribute.String("agent.id", id))
	defer span.End()

	start := time.Now()
	agent, err := r.repo.MarkUninstalled(ctx, id, at)
	r.finish(ctx, span, "uninstall_agent", start, err)
	return agent, err
}

func (r *ObservableRepository) CreateIssuedTask(ctx context.Context, task domain.IssuedTask) error {
	ctx, span := r.start(ctx, "CreateIssuedTask",
		attribute.String("agent.id", task.AgentID),
		attribute.String("task.id", task.TaskID),
	)
	defer span.End()

	start := time.Now()
	err := r.repo.CreateIssuedTask(ctx, task)
	r.finish(ctx, span, "create_issued_task", start, err)
	return err
}

func (r *ObservableRepository) ListIssuedTasks(ctx context.Context, filter ports.TaskHistoryFilter) ([]domain.IssuedTask, error) {
	ctx, span := r.start(ctx, "ListIssuedTasks",
		attribute.String("agent.id", filter.AgentID),
		attribute.String("order", string(filter.Plan.Direction)),
		attribute.Int("limit", filter.Plan.Limit),
		attribute.Bool("has_cursor", filter.Plan.Cursor != nil),
	)
	defer span.End()

	start := time.Now()
	tasks, err := r.repo.ListIssuedTasks(ctx, filter)
	if err == nil {
		telemetry.AddSpanAttributes(span, attribute.Int("result.count", len(tasks)))
	}
	r.finish(ctx, span, "list_issued_tasks", start, err)
	return tasks, err
}

func (r *ObservableRepository) start(ctx context.Context, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := telemetry.StartSpan(ctx, "AgentRepository."+method)
	telemetry.AddSpanAttributes(span, attrs...)
	return ctx, span
}

func (r *ObservableRepository) finish(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	r.metrics.RecordQuery(ctx, operation, time.Since(start).Seconds())
	if errors.Is(err, ports.ErrNotFound) || errors.Is(err, ports.ErrAlreadyEnrolled) {
		return
	}
	r.metrics.RecordError(ctx, operation, err)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		return
	}
	telemetry.SetSpanSuccess(span)
}
