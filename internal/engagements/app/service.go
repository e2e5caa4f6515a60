package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/dejobratic/opsapi/internal/engagements/app/commands"
	"github.com/dejobratic/opsapi/internal/engagements/app/queries"
	"github.com/dejobratic/opsapi/internal/engagements/domain"
	"github.com/dejobratic/opsapi/internal/engagements/metrics"
	"github.com/dejobratic/opsapi/internal/engagements/ports"
	"github.com/dejobratic/opsapi/internal/events"
	"github.com/dejobratic/opsapi/internal/pagination"
)

// Service bundles the engagement use cases exposed over HTTP.
type Service struct {
	create commands.CreateHandler
	update *commands.UpdateEngagementCommandHandler
	delete *commands.DeleteEngagementCommandHandler
	get    *queries.GetEngagementQueryHandler
	list   *queries.ListEngagementsQueryHandler
}

// NewService wires required dependencies. now may be nil.
func NewService(
	repo ports.Repository,
	publisher events.Publisher,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	now func() time.Time,
) *Service {
	coreCreate := commands.NewCreateEngagementCommandHandler(repo, publisher, now)

	return &Service{
		create: commands.NewObservableCreateHandler(coreCreate, logger, metrics),
		update: commands.NewUpdateEngagementCommandHandler(repo, publisher),
		delete: commands.NewDeleteEngagementCommandHandler(repo, publisher),
		get:    queries.NewGetEngagementQueryHandler(repo),
		list:   queries.NewListEngagementsQueryHandler(repo, metrics, now),
	}
}

// CreateEngagementInput captures the payload for creating an engagement.
type CreateEngagementInput struct {
	Name    string     `json:"engagement_name" validate:"required,max=255"`
	StartTS time.Time  `json:"start_ts" validate:"required"`
	EndTS   *time.Time `json:"end_ts"`
}

// UpdateEngagementInput captures a partial update.
type UpdateEngagementInput struct {
	Name    *string    `json:"engagement_name" validate:"omitempty,max=255"`
	StartTS *time.Time `json:"start_ts"`
	EndTS   *time.Time `json:"end_ts"`
}

func (s *Service) CreateEngagement(ctx context.Context, actor string, input CreateEngagementInput) (*domain.Engagement, error) {
	return s.create.Handle(ctx, commands.CreateEngagementCommand{
		Name:    input.Name,
		StartTS: input.StartTS,
		EndTS:   input.EndTS,
		Actor:   actor,
	})
}

func (s *Service) UpdateEngagement(ctx context.Context, actor, id string, input UpdateEngagementInput) (*domain.Engagement, error) {
	return s.update.Handle(ctx, commands.UpdateEngagementCommand{
		ID:    id,
		Patch: domain.Patch{Name: input.Name, StartTS: input.StartTS, EndTS: input.EndTS},
		Actor: actor,
	})
}

func (s *Service) DeleteEngagement(ctx context.Context, actor, id string) error {
	return s.delete.Handle(ctx, commands.DeleteEngagementCommand{ID: id, Actor: actor})
}

func (s *Service) GetEngagement(ctx context.Context, id string) (*domain.Engagement, error) {
	return s.get.Handle(ctx, queries.GetEngagementQuery{EngagementID: id})
}

func (s *Service) ListEngagements(ctx context.Context, query queries.ListEngagementsQuery) (pagination.Page[domain.Engagement], error) {
	return s.list.Handle(ctx, query)
}
