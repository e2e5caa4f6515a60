package app

import (
	"context"
	"time"

	engdomain "github.com/dejobratic/opsapi/internal/engagements/domain"
	"github.com/dejobratic/opsapi/internal/events"
	"github.com/dejobratic/opsapi/internal/pagination"
	"github.com/dejobratic/opsapi/internal/users/app/commands"
	"github.com/dejobratic/opsapi/internal/users/app/queries"
	"github.com/dejobratic/opsapi/internal/users/domain"
	"github.com/dejobratic/opsapi/internal/users/metrics"
	"github.com/dejobratic/opsapi/internal/users/ports"
)

type Service struct {
	commands *commands.Handler
	queries  *queries.Handler
}

func NewService(repo ports.Repository, engagements ports.Engagements, publisher events.Publisher, metrics *metrics.Metrics, now func() time.Time) *Service {
	return &Service{
		commands: commands.NewHandler(repo, engagements, publisher, metrics, now),
		queries:  queries.NewHandler(repo, metrics),
	}
}

type CreateUserInput struct {
	Username     string `json:"username" validate:"required,min=3,max=128"`
	PasswordHash string `json:"password_hash" validate:"required,min=32,max=512"`
	GlobalRole   string `json:"global_role"`
}

type UpdateUserInput struct {
	GlobalRole string `json:"global_role" validate:"required"`
}

type AddEngagementsInput struct {
	EngagementIDs []string `json:"engagement_uuids" validate:"max=1000,dive,uuid"`
}

func (s *Service) CreateUser(ctx context.Context, actor string, input CreateUserInput) (*domain.User, error) {
	role, err := domain.ParseRole(input.GlobalRole)
	if err != nil {
		return nil, err
	}
	return s.commands.Create(ctx, commands.CreateUserCommand{
		Username:     input.Username,
		PasswordHash: input.PasswordHash,
		GlobalRole:   role,
		Actor:        actor,
	})
}

func (s *Service) SetStatus(ctx context.Context, actor, id string, status domain.Status) (*domain.User, error) {
	return s.commands.SetStatus(ctx, commands.SetStatusCommand{UserID: id, Status: status, Actor: actor})
}

func (s *Service) UpdateUser(ctx context.Context, actor, id string, input UpdateUserInput) (*domain.User, error) {
	role, err := domain.ParseRole(input.GlobalRole)
	if err != nil {
		return nil, err
	}
	return s.commands.SetRole(ctx, commands.SetRoleCommand{UserID: id, Role: role, Actor: actor})
}

func (s *Service) DeleteUser(ctx context.Context, actor, id string) error {
	return s.commands.Delete(ctx, commands.DeleteUserCommand{UserID: id, Actor: actor})
}

func (s *Service) AddEngagements(ctx context.Context, actor, id string, input AddEngagementsInput) error {
	return s.commands.AddEngagements(ctx, commands.AddEngagementsCommand{
		UserID:        id,
		EngagementIDs: input.EngagementIDs,
		Actor:         actor,
	})
}

func (s *Service) RemoveEngagement(ctx context.Context, actor, id, engagementID string) error {
	return s.commands.RemoveEngagement(ctx, commands.RemoveEngagementCommand{
		UserID:       id,
		EngagementID: engagementID,
		Actor:        actor,
	})
}

func (s *Service) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.queries.Get(ctx, id)
}

func (s *Service) ListEngagements(ctx context.Context, query queries.ListEngagementsQuery) (pagination.Page[engdomain.Engagement], error) {
	return s.queries.ListEngagements(ctx, query)
}
