package app

import (
	"context"
	"time"

	"github.com/dejobratic/opsapi/internal/auth"
	"github.com/dejobratic/opsapi/internal/events"
	"github.com/dejobratic/opsapi/internal/pagination"
	"github.com/dejobratic/opsapi/internal/tasking/app/commands"
	"github.com/dejobratic/opsapi/internal/tasking/app/queries"
	"github.com/dejobratic/opsapi/internal/tasking/domain"
	"github.com/dejobratic/opsapi/internal/tasking/metrics"
	"github.com/dejobratic/opsapi/internal/tasking/ports"
)

type Service struct {
	commands *commands.Handler
	queries  *queries.Handler
}

func NewService(repo ports.Repository, publisher events.Publisher, metrics *metrics.Metrics, now func() time.Time) *Service {
	return &Service{
		commands: commands.NewHandler(repo, publisher, metrics, now),
		queries:  queries.NewHandler(repo, metrics),
	}
}

type CreateTaskInput struct {
	LongName   string `json:"task_long_name" validate:"required,max=255"`
	Permission string `json:"task_permission" validate:"required"`
}

type UpdateTaskInput struct {
	LongName   *string `json:"task_long_name" validate:"omitempty,min=1,max=255"`
	Permission *string `json:"task_permission"`
}

func (s *Service) CreateTask(ctx context.Context, actor string, input CreateTaskInput) (*domain.Task, error) {
	role, err := domain.ParsePermission(input.Permission)
	if err != nil {
		return nil, err
	}
	return s.commands.Create(ctx, commands.CreateTaskCommand{
		LongName:   input.LongName,
		Permission: role,
		Actor:      actor,
	})
}

func (s *Service) UpdateTask(ctx context.Context, actor, id string, input UpdateTaskInput) (*domain.Task, error) {
	patch := domain.Patch{LongName: input.LongName}
	if input.Permission != nil {
		role, err := domain.ParsePermission(*input.Permission)
		if err != nil {
			return nil, err
		}
		patch.Permission = &role
	}
	return s.commands.Update(ctx, commands.UpdateTaskCommand{ID: id, Patch: patch, Actor: actor})
}

func (s *Service) DeleteTask(ctx context.Context, actor, id string) error {
	return s.commands.Delete(ctx, commands.DeleteTaskCommand{ID: id, Actor: actor})
}

func (s *Service) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return s.queries.Get(ctx, id)
}

func (s *Service) ListTasks(ctx context.Context, query queries.ListTasksQuery) (pagination.Page[domain.Task], error) {
	return s.queries.List(ctx, query)
}

// ParseMinRole resolves the optional min_role filter. Empty selects all.
func ParseMinRole(value string) (auth.Role, error) {
	if value == "" {
		return "", nil
	}
	return domain.ParsePermission(value)
}
