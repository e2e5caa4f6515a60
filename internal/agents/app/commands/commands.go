package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dejobratic/opsapi/internal/agents/domain"
	"github.com/dejobratic/opsapi/internal/agents/metrics"
	"github.com/dejobratic/opsapi/internal/agents/ports"
	"github.com/dejobratic/opsapi/internal/auth"
	"github.com/dejobratic/opsapi/internal/events"
	taskdomain "github.com/dejobratic/opsapi/internal/tasking/domain"
	taskports "github.com/dejobratic/opsapi/internal/tasking/ports"
)

// ErrEventNotPublished marks a persisted write whose event was not delivered.
var ErrEventNotPublished = errors.New("event not published")

var (
	ErrConfigurationMismatch = errors.New("agent already enrolled with another configuration")
	ErrAgentUninstalled      = errors.New("agent is uninstalled")
	ErrTaskNotFound          = errors.New("task not found")
	ErrTaskForbidden         = errors.New("role may not issue task")
)

const (
	EventEnrolled    events.Type = "agent.enrolled"
	EventCheckedIn   events.Type = "agent.checked_in"
	EventUninstalled events.Type = "agent.uninstalled"
	EventTaskIssued  events.Type = "agent.task_issued"
)

type EnrollAgentCommand struct {
	AgentID         string
	ConfigurationID string
	Actor           string
}

type CheckInCommand struct {
	AgentID string
	Actor   string
}

type UninstallAgentCommand struct {
	AgentID string
	Actor   string
}

// IssueTaskCommand names the catalog task by TaskID, or by TaskName when
// TaskID is empty. Role is the operator's highest role.
type IssueTaskCommand struct {
	AgentID    string
	TaskID     string
	TaskName   string
	Parameters json.RawMessage
	Operator   string
	Role       auth.Role
}

type Handler struct {
	repo    ports.Repository
	catalog ports.TaskCatalog
	events  events.Publisher
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewHandler(repo ports.Repository, catalog ports.TaskCatalog, publisher events.Publisher, metrics *metrics.Metrics, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{repo: repo, catalog: catalog, events: publisher, metrics: metrics, now: now}
}

// Enroll registers an agent. Enrolling an agent again with the same
// configuration returns the stored agent and created=false.
func (h *Handler) Enroll(ctx context.Context, cmd EnrollAgentCommand) (agent *domain.Agent, created bool, err error) {
	defer func() { h.metrics.RecordWrite(ctx, "enroll", err) }()

	a := domain.Agent{
		ID:              cmd.AgentID,
		ConfigurationID: cmd.ConfigurationID,
		CreatedAt:       h.timestamp(),
	}
	if err := a.Validate(); err != nil {
		return nil, false, err
	}

	err = h.repo.Create(ctx, a)
	if errors.Is(err, ports.ErrAlreadyEnrolled) {
		existing, err := h.repo.GetByID(ctx, a.ID)
		if err != nil {
			return nil, false, err
		}
		if existing.ConfigurationID != a.ConfigurationID {
			return nil, false, ErrConfigurationMismatch
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return &a, true, h.publish(ctx, EventEnrolled, a.ID, cmd.Actor)
}

func (h *Handler) CheckIn(ctx context.Context, cmd CheckInCommand) (agent *domain.Agent, err error) {
	defer func() { h.metrics.RecordCheckIn(ctx, err) }()

	now := h.timestamp()
	current, err := h.repo.GetByID(ctx, cmd.AgentID)
	if err != nil {
		return nil, err
	}
	if current.Uninstalled(now) {
		return nil, ErrAgentUninstalled
	}

	agent, err = h.repo.RecordCheckIn(ctx, cmd.AgentID, now)
	if err != nil {
		return nil, err
	}

	return agent, h.publish(ctx, EventCheckedIn, cmd.AgentID, cmd.Actor)
}

func (h *Handler) Uninstall(ctx context.Context, cmd UninstallAgentCommand) (agent *domain.Agent, err error) {
	defer func() { h.metrics.RecordWrite(ctx, "uninstall", err) }()

	now := h.timestamp()
	current, err := h.repo.GetByID(ctx, cmd.AgentID)
	if err != nil {
		return nil, err
	}
	if current.Uninstalled(now) {
		return nil, ErrAgentUninstalled
	}

	agent, err = h.repo.MarkUninstalled(ctx, cmd.AgentID, now)
	if err != nil {
		return nil, err
	}

	return agent, h.publish(ctx, EventUninstalled, cmd.AgentID, cmd.Actor)
}

func (h *Handler) IssueTask(ctx context.Context, cmd IssueTaskCommand) (issued *domain.IssuedTask, err error) {
	defer func() { h.metrics.RecordWrite(ctx, "issue_task", err) }()

	name := strings.TrimSpace(cmd.TaskName)
	if cmd.TaskID == "" && name == "" {
		return nil, domain.ErrTaskRequired
	}
	params, err := domain.NormalizeParameters(cmd.Parameters)
	if err != nil {
		return nil, err
	}

	now := h.timestamp()
	agent, err := h.repo.GetByID(ctx, cmd.AgentID)
	if err != nil {
		return nil, err
	}
	if agent.Uninstalled(now) {
		return nil, ErrAgentUninstalled
	}

	task, err := h.resolve(ctx, cmd.TaskID, name)
	if err != nil {
		return nil, err
	}
	if !task.Allows(cmd.Role) {
		return nil, fmt.Errorf("%w: %q requires %s", ErrTaskForbidden, task.LongName, task.Permission)
	}

	t := domain.IssuedTask{
		ID:         uuid.NewString(),
		AgentID:    agent.ID,
		TaskID:     task.ID,
		Operator:   cmd.Operator,
		Parameters: params,
		IssuedAt:   now,
	}
	if err := h.repo.CreateIssuedTask(ctx, t); err != nil {
		return nil, err
	}

	return &t, h.publish(ctx, EventTaskIssued, t.ID, cmd.Operator)
}

func (h *Handler) resolve(ctx context.Context, id, name string) (*taskdomain.Task, error) {
	var (
		task *taskdomain.Task
		err  error
	)
	if id != "" {
		task, err = h.catalog.GetByID(ctx, id)
	} else {
		task, err = h.catalog.GetByLongName(ctx, name)
	}
	if errors.Is(err, taskports.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	return task, err
}

func (h *Handler) timestamp() time.Time {
	return h.now().UTC().Truncate(time.Microsecond)
}

func (h *Handler) publish(ctx context.Context, eventType events.Type, id, actor string) error {
	if err := h.events.Publish(ctx, events.Event{Type: eventType, ResourceID: id, Actor: actor}); err != nil {
		return fmt.Errorf("%w: %w", ErrEventNotPublished, err)
	}
	return nil
}
