package adapters

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dejobratic/opsapi/internal/auth"
	"github.com/dejobratic/opsapi/internal/database"
	engdomain "github.com/dejobratic/opsapi/internal/engagements/domain"
	"github.com/dejobratic/opsapi/internal/telemetry"
	"github.com/dejobratic/opsapi/internal/users/domain"
	"github.com/dejobratic/opsapi/internal/users/ports"
)

type ObservableRepository struct {
	repo    ports.Repository
	metrics *database.Metrics
}

func NewObservableRepository(repo ports.Repository, metrics *database.Metrics) *ObservableRepository {
	return &ObservableRepository{repo: repo, metrics: metrics}
}

func (r *ObservableRepository) Create(ctx context.Context, user domain.User) error {
	ctx, span := r.start(ctx, "Create",
		attribute.String("user.id", user.ID),
		attribute.String("user.global_role", string(user.GlobalRole)),
	)
	defer span.End()

	start := time.Now()
	err := r.repo.Create(ctx, user)
	r.finish(ctx, span, "create_user", start, err)
	return err
}

func (r *ObservableRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := r.start(ctx, "GetByID", attribute.String("user.id", id))
	defer span.End()

	start := time.Now()
	user, err := r.repo.GetByID(ctx, id)
	r.finish(ctx, span, "get_user_by_id", start, err)
	return user, err
}

func (r *ObservableRepository) SetStatus(ctx context.Context, id string, status domain.Status) (*domain.User, error) {
	ctx, span := r.start(ctx, "SetStatus",
		attribute.String("user.id", id),
		attribute.String("user.account_status", string(status)),
	)
	defer span.End()

	start := time.Now()
	user, err := r.repo.SetStatus(ctx, id, status)
	r.finish(ctx, span, "set_user_status", start, err)
	return user, err
}

func (r *ObservableRepository) SetRole(ctx context.Context, id string, role auth.Role) (*domain.User, error) {
	ctx, span := r.start(ctx, "SetRole",
		attribute.String("user.id", id),
		attribute.String("user.global_role", string(role)),
	)
	defer span.End()

	start := time.Now()
	user, err := r.repo.SetRole(ctx, id, role)
	r.finish(ctx, span, "set_user_role", start, err)
	return user, err
}

func (r *ObservableRepository) Delete(ctx context.Context, id string) error {
	ctx, span := r.start(ctx, "Delete", attribute.String("user.id", id))
	defer span.End()

	start := time.Now()
	err := r.repo.Delete(ctx, id)
	r.finish(ctx, span, "delete_user", start, err)
	return err
}

func (r *ObservableRepository) ListEngagements(ctx context.Context, filter ports.MembershipFilter) ([]engdomain.Engagement, error) {
	ctx, span := r.start(ctx, "ListEngagements",
		attribute.String("user.id", filter.UserID),
		attribute.String("order", string(filter.Plan.Direction)),
		attribute.Int("limit", filter.Plan.Limit),
		attribute.Bool("has_cursor", filter.Plan.Cursor != nil),
	)
	defer span.End()

	start := time.Now()
	engagements, err := r.repo.ListEngagements(ctx, filter)
	if err == nil {
		telemetry.AddSpanAttributes(span, attribute.Int("result.count", len(engagements)))
	}
	r.finish(ctx, span, "list_user_engagements", start, err)
	return engagements, err
}

func (r *ObservableRepository) AddEngagements(ctx context.Context, userID string, engagementIDs []string) error {
	ctx, span := r.start(ctx, "AddEngagements",
		attribute.String("user.id", userID),
		attribute.Int("engagement.count", len(engagementIDs)),
	)
	defer span.End()

	start := time.Now()
	err := r.repo.AddEngagements(ctx, userID, engagementIDs)
	r.finish(ctx, span, "add_user_engagements", start, err)
	return err
}

func (r *ObservableRepository) RemoveEngagement(ctx context.Context, userID, engagementID string) error {
	ctx, span := r.start(ctx, "RemoveEngagement",
		attribute.String("user.id", userID),
		attribute.String("engagement.id", engagementID),
	)
	defer span.End()

	start := time.Now()
	err := r.repo.RemoveEngagement(ctx, userID, engagementID)
	r.finish(ctx, span, "remove_user_engagement", start, err)
	return err
}

func (r *ObservableRepository) start(ctx context.Context, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := telemetry.StartSpan(ctx, "UserRepository."+method)
	telemetry.AddSpanAttributes(span, attrs...)
	return ctx, span
}

func (r *ObservableRepository) finish(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	r.metrics.RecordQuery(ctx, operation, time.Since(start).Seconds())
	if errors.Is(err, ports.ErrNotFound) || errors.Is(err, ports.ErrUsernameTaken) || errors.Is(err, ports.ErrEngagementNotFound) {
		return
	}
	r.metrics.RecordError(ctx, operation, err)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		return
	}
	telemetry.SetSpanSuccess(span)
}
