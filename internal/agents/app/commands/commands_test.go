package commands_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejobratic/opsapi/internal/agents/adapters/memory"
	"github.com/dejobratic/opsapi/internal/agents/app/commands"
	"github.com/dejobratic/opsapi/internal/agents/domain"
	"github.com/dejobratic/opsapi/internal/agents/ports"
	"github.com/dejobratic/opsapi/internal/auth"
	"github.com/dejobratic/opsapi/internal/events"
	taskmemory "github.com/dejobratic/opsapi/internal/tasking/adapters/memory"
	taskdomain "github.com/dejobratic/opsapi/internal/tasking/domain"
)

type recordingPublisher struct {
	types []events.Type
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.types = append(p.types, event.Type)
	return p.err
}

type fixture struct {
	handler   *commands.Handler
	repo      *memory.Repository
	catalog   *taskmemory.Repository
	publisher *recordingPublisher
	clock     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      memory.NewRepository(),
		catalog:   taskmemory.NewRepository(),
		publisher: &recordingPublisher{},
		clock:     time.Date(2025, 3, 1, 12, 0, 0, 999, time.UTC),
	}
	f.handler = commands.NewHandler(f.repo, f.catalog, f.publisher, nil, func() time.Time { return f.clock })
	return f
}

func (f *fixture) enroll(t *testing.T) *domain.Agent {
	t.Helper()
	agent, created, err := f.handler.Enroll(context.Background(), commands.EnrollAgentCommand{
		AgentID:         uuid.NewString(),
		ConfigurationID: uuid.NewString(),
	})
	require.NoError(t, err)
	require.True(t, created)
	return agent
}

func (f *fixture) catalogTask(t *testing.T, name string, permission auth.Role) taskdomain.Task {
	t.Helper()
	task := taskdomain.Task{ID: uuid.NewString(), LongName: name, Permission: permission, CreatedAt: f.clock}
	require.NoError(t, f.catalog.Create(context.Background(), task))
	return task
}

func TestEnroll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cmd := commands.EnrollAgentCommand{AgentID: uuid.NewString(), ConfigurationID: uuid.NewString(), Actor: "op"}
	agent, created, err := f.handler.Enroll(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 0, agent.CreatedAt.Nanosecond()%1000)
	assert.Nil(t, agent.LastSeen)

	t.Run("same configuration returns the enrolled agent", func(t *testing.T) {
		again, created, err := f.handler.Enroll(ctx, cmd)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, *agent, *again)
	})

	t.Run("another configuration conflicts", func(t *testing.T) {
		_, _, err := f.handler.Enroll(ctx, commands.EnrollAgentCommand{AgentID: cmd.AgentID, ConfigurationID: uuid.NewString()})
		assert.ErrorIs(t, err, commands.ErrConfigurationMismatch)
	})

	t.Run("missing configuration", func(t *testing.T) {
		_, _, err := f.handler.Enroll(ctx, commands.EnrollAgentCommand{AgentID: uuid.NewString()})
		assert.ErrorIs(t, err, domain.ErrConfigurationIDRequired)
	})

	assert.Equal(t, []events.Type{commands.EventEnrolled}, f.publisher.types)
}

func TestCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.enroll(t)

	first := f.clock
	updated, err := f.handler.CheckIn(ctx, commands.CheckInCommand{AgentID: agent.ID})
	require.NoError(t, err)
	require.NotNil(t, updated.LastSeen)
	assert.True(t, updated.LastSeen.Equal(first.Truncate(time.Microsecond)))

	f.clock = f.clock.Add(-time.Minute)
	updated, err = f.handler.CheckIn(ctx, commands.CheckInCommand{AgentID: agent.ID})
	require.NoError(t, err)
	assert.True(t, updated.LastSeen.Equal(first.Truncate(time.Microsecond)), "late check-in moved last_seen back")
	assert.Len(t, f.repo.CheckIns(agent.ID), 2)

	_, err = f.handler.CheckIn(ctx, commands.CheckInCommand{AgentID: uuid.NewString()})
	assert.ErrorIs(t, err, ports.ErrNotFound)

	assert.Equal(t, []events.Type{commands.EventEnrolled, commands.EventCheckedIn, commands.EventCheckedIn}, f.publisher.types)
}

func TestUninstall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.enroll(t)

	retired, err := f.handler.Uninstall(ctx, commands.UninstallAgentCommand{AgentID: agent.ID})
	require.NoError(t, err)
	require.NotNil(t, retired.UninstallDate)

	_, err = f.handler.Uninstall(ctx, commands.UninstallAgentCommand{AgentID: agent.ID})
	assert.ErrorIs(t, err, commands.ErrAgentUninstalled)

	_, err = f.handler.CheckIn(ctx, commands.CheckInCommand{AgentID: agent.ID})
	assert.ErrorIs(t, err, commands.ErrAgentUninstalled)
}

func TestIssueTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.enroll(t)
	collect := f.catalogTask(t, "collect logs", auth.RoleOperator)
	wipe := f.catalogTask(t, "wipe host", auth.RoleAdmin)

	t.Run("by id", func(t *testing.T) {
		issued, err := f.handler.IssueTask(ctx, commands.IssueTaskCommand{
			AgentID:    agent.ID,
			TaskID:     collect.ID,
			Parameters: json.RawMessage(`{"since":"1h"}`),
			Operator:   "alice",
			Role:       auth.RoleOperator,
		})
		require.NoError(t, err)
		assert.Equal(t, collect.ID, issued.TaskID)
		assert.Equal(t, "alice", issued.Operator)
		assert.JSONEq(t, `{"since":"1h"}`, string(issued.Parameters))
	})

	t.Run("by name", func(t *testing.T) {
		issued, err := f.handler.IssueTask(ctx, commands.IssueTaskCommand{
			AgentID:  agent.ID,
			TaskName: " collect logs ",
			Operator: "alice",
			Role:     auth.RoleAdmin,
		})
		require.NoError(t, err)
		assert.Equal(t, collect.ID, issued.TaskID)
		assert.Nil(t, issued.Parameters)
	})

	tests := []struct {
		name    string
		cmd     commands.IssueTaskCommand
		wantErr error
	}{
		{"neither id nor name", commands.IssueTaskCommand{AgentID: agent.ID, Role: auth.RoleAdmin}, domain.ErrTaskRequired},
		{"unknown name", commands.IssueTaskCommand{AgentID: agent.ID, TaskName: "nope", Role: auth.RoleAdmin}, commands.ErrTaskNotFound},
		{"unknown id", commands.IssueTaskCommand{AgentID: agent.ID, TaskID: uuid.NewString(), Role: auth.RoleAdmin}, commands.ErrTaskNotFound},
		{"role below task permission", commands.IssueTaskCommand{AgentID: agent.ID, TaskID: wipe.ID, Role: auth.RoleOperator}, commands.ErrTaskForbidden},
		{"parameters not an object", commands.IssueTaskCommand{AgentID: agent.ID, TaskID: collect.ID, Parameters: json.RawMessage(`[1]`), Role: auth.RoleAdmin}, domain.ErrParametersNotObject},
		{"unknown agent", commands.IssueTaskCommand{AgentID: uuid.NewString(), TaskID: collect.ID, Role: auth.RoleAdmin}, ports.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.handler.IssueTask(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIssueTask_PublishFailure(t *testing.T) {
	f := newFixture(t)
	agent := f.enroll(t)
	task := f.catalogTask(t, "collect", auth.RoleAnalyst)
	f.publisher.err = errors.New("down")

	issued, err := f.handler.IssueTask(context.Background(), commands.IssueTaskCommand{AgentID: agent.ID, TaskID: task.ID, Role: auth.RoleAnalyst})

	assert.ErrorIs(t, err, commands.ErrEventNotPublished)
	assert.NotNil(t, issued)
}
