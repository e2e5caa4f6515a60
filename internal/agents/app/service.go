package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dejobratic/opsapi/internal/agents/app/commands"
	"github.com/dejobratic/opsapi/internal/agents/app/queries"
	"github.com/dejobratic/opsapi/internal/agents/domain"
	"github.com/dejobratic/opsapi/internal/agents/metrics"
	"github.com/dejobratic/opsapi/internal/agents/ports"
	"github.com/dejobratic/opsapi/internal/auth"
	"github.com/dejobratic/opsapi/internal/events"
	"github.com/dejobratic/opsapi/internal/pagination"
)

type Service struct {
	commands *commands.Handler
	queries  *queries.Handler
}

func NewService(repo ports.Repository, catalog ports.TaskCatalog, publisher events.Publisher, metrics *metrics.Metrics, now func() time.Time) *Service {
	return &Service{
		commands: commands.NewHandler(repo, catalog, publisher, metrics, now),
		queries:  queries.NewHandler(repo, metrics),
	}
}

type EnrollAgentInput struct {
	AgentID         string `json:"agent_uuid" validate:"required,uuid"`
	ConfigurationID string `json:"agent_configuration_uuid" validate:"required,uuid"`
}

type IssueTaskInput struct {
	TaskID     string          `json:"task_uuid" validate:"omitempty,uuid"`
	TaskName   string          `json:"task_name" validate:"omitempty,max=255"`
	Parameters json.RawMessage `json:"parameters"`
}

func (s *Service) EnrollAgent(ctx context.Context, actor string, input EnrollAgentInput) (*domain.Agent, bool, error) {
	return s.commands.Enroll(ctx, commands.EnrollAgentCommand{
		AgentID:         input.AgentID,
		ConfigurationID: input.ConfigurationID,
		Actor:           actor,
	})
}

func (s *Service) CheckIn(ctx context.Context, actor, agentID string) (*domain.Agent, error) {
	return s.commands.CheckIn(ctx, commands.CheckInCommand{AgentID: agentID, Actor: actor})
}

func (s *Service) UninstallAgent(ctx context.Context, actor, agentID string) (*domain.Agent, error) {
	return s.commands.Uninstall(ctx, commands.UninstallAgentCommand{AgentID: agentID, Actor: actor})
}

func (s *Service) IssueTask(ctx context.Context, operator auth.Principal, agentID string, input IssueTaskInput) (*domain.IssuedTask, error) {
	return s.commands.IssueTask(ctx, commands.IssueTaskCommand{
		AgentID:    agentID,
		TaskID:     input.TaskID,
		TaskName:   input.TaskName,
		Parameters: input.Parameters,
		Operator:   operator.Subject,
		Role:       operator.Highest(),
	})
}

func (s *Service) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	return s.queries.Get(ctx, id)
}

func (s *Service) ListIssuedTasks(ctx context.Context, query queries.ListIssuedTasksQuery) (pagination.Page[domain.IssuedTask], error) {
	return s.queries.ListIssuedTasks(ctx, query)
}
