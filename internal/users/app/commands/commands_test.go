package commands_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejobratic/opsapi/internal/auth"
	engmemory "github.com/dejobratic/opsapi/internal/engagements/adapters/memory"
	engdomain "github.com/dejobratic/opsapi/internal/engagements/domain"
	"github.com/dejobratic/opsapi/internal/events"
	"github.com/dejobratic/opsapi/internal/pagination"
	"github.com/dejobratic/opsapi/internal/users/adapters/memory"
	"github.com/dejobratic/opsapi/internal/users/app/commands"
	"github.com/dejobratic/opsapi/internal/users/domain"
	"github.com/dejobratic/opsapi/internal/users/ports"
)

var hash = strings.Repeat("h", 60)

type recordingPublisher struct {
	types []events.Type
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.types = append(p.types, event.Type)
	return p.err
}

type fixture struct {
	handler     *commands.Handler
	repo        *memory.Repository
	engagements *engmemory.Repository
	publisher   *recordingPublisher
	clock       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		engagements: engmemory.NewRepository(),
		publisher:   &recordingPublisher{},
		clock:       time.Date(2025, 3, 1, 12, 0, 0, 999, time.UTC),
	}
	f.repo = memory.NewRepository(f.engagements)
	f.handler = commands.NewHandler(f.repo, f.engagements, f.publisher, nil, func() time.Time { return f.clock })
	return f
}

func (f *fixture) user(t *testing.T, name string) *domain.User {
	t.Helper()
	user, err := f.handler.Create(context.Background(), commands.CreateUserCommand{Username: name, PasswordHash: hash})
	require.NoError(t, err)
	return user
}

func (f *fixture) engagement(t *testing.T, offset time.Duration) string {
	t.Helper()
	e := engdomain.Engagement{
		ID:        uuid.NewString(),
		Name:      uuid.NewString(),
		StartTS:   f.clock,
		CreatedAt: f.clock.Add(offset),
	}
	require.NoError(t, f.engagements.Create(context.Background(), e))
	return e.ID
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.handler.Create(ctx, commands.CreateUserCommand{Username: "  alice ", PasswordHash: hash, Actor: "root"})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, domain.StatusEnabled, user.AccountStatus)
	assert.Equal(t, auth.RoleAnalyst, user.GlobalRole)
	assert.Equal(t, f.clock.Truncate(time.Microsecond), user.CreatedAt)
	assert.Equal(t, []events.Type{commands.EventCreated}, f.publisher.types)

	_, err = f.handler.Create(ctx, commands.CreateUserCommand{Username: "alice", PasswordHash: hash})
	assert.ErrorIs(t, err, ports.ErrUsernameTaken)

	admin, err := f.handler.Create(ctx, commands.CreateUserCommand{Username: "bob", PasswordHash: hash, GlobalRole: auth.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, admin.GlobalRole)

	_, err = f.handler.Create(ctx, commands.CreateUserCommand{Username: "carol", PasswordHash: "short"})
	assert.ErrorIs(t, err, domain.ErrPasswordHashLength)
}

func TestStatusAndRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.user(t, "alice")

	disabled, err := f.handler.SetStatus(ctx, commands.SetStatusCommand{UserID: user.ID, Status: domain.StatusDisabled})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisabled, disabled.AccountStatus)

	_, err = f.handler.SetStatus(ctx, commands.SetStatusCommand{UserID: user.ID, Status: "locked"})
	assert.ErrorIs(t, err, domain.ErrUnknownStatus)

	promoted, err := f.handler.SetRole(ctx, commands.SetRoleCommand{UserID: user.ID, Role: auth.RoleOperator})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleOperator, promoted.GlobalRole)
	assert.Equal(t, domain.StatusDisabled, promoted.AccountStatus)

	_, err = f.handler.SetRole(ctx, commands.SetRoleCommand{UserID: uuid.NewString(), Role: auth.RoleAdmin})
	assert.ErrorIs(t, err, ports.ErrNotFound)

	assert.Equal(t, []events.Type{commands.EventCreated, commands.EventUpdated, commands.EventUpdated}, f.publisher.types)
}

func TestMemberships(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.user(t, "alice")
	first, second := f.engagement(t, 0), f.engagement(t, time.Minute)

	err := f.handler.AddEngagements(ctx, commands.AddEngagementsCommand{UserID: user.ID, EngagementIDs: []string{first, second, first}})
	require.NoError(t, err)
	require.NoError(t, f.handler.AddEngagements(ctx, commands.AddEngagementsCommand{UserID: user.ID, EngagementIDs: []string{first}}))

	plan := pagination.NewPlan(pagination.Descending, nil, 10)
	rows, err := f.repo.ListEngagements(ctx, ports.MembershipFilter{UserID: user.ID, Plan: plan})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, second, rows[0].ID)

	err = f.handler.AddEngagements(ctx, commands.AddEngagementsCommand{UserID: user.ID, EngagementIDs: []string{uuid.NewString()}})
	assert.ErrorIs(t, err, ports.ErrEngagementNotFound)
	err = f.handler.AddEngagements(ctx, commands.AddEngagementsCommand{UserID: user.ID})
	assert.ErrorIs(t, err, commands.ErrEngagementsRequired)
	err = f.handler.AddEngagements(ctx, commands.AddEngagementsCommand{UserID: uuid.NewString(), EngagementIDs: []string{first}})
	assert.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, f.handler.RemoveEngagement(ctx, commands.RemoveEngagementCommand{UserID: user.ID, EngagementID: first}))
	require.NoError(t, f.handler.RemoveEngagement(ctx, commands.RemoveEngagementCommand{UserID: user.ID, EngagementID: first}))
	rows, err = f.repo.ListEngagements(ctx, ports.MembershipFilter{UserID: user.ID, Plan: plan})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, second, rows[0].ID)

	require.NoError(t, f.engagements.Delete(ctx, second))
	rows, err = f.repo.ListEngagements(ctx, ports.MembershipFilter{UserID: user.ID, Plan: plan})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.user(t, "alice")
	require.NoError(t, f.handler.AddEngagements(ctx, commands.AddEngagementsCommand{UserID: user.ID, EngagementIDs: []string{f.engagement(t, 0)}}))

	require.NoError(t, f.handler.Delete(ctx, commands.DeleteUserCommand{UserID: user.ID}))
	_, err := f.repo.GetByID(ctx, user.ID)
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.ErrorIs(t, f.handler.Delete(ctx, commands.DeleteUserCommand{UserID: user.ID}), ports.ErrNotFound)

	again := f.user(t, "alice")
	rows, err := f.repo.ListEngagements(ctx, ports.MembershipFilter{UserID: again.ID, Plan: pagination.NewPlan(pagination.Descending, nil, 10)})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCreate_PublishFailure(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("bus down")

	user, err := f.handler.Create(context.Background(), commands.CreateUserCommand{Username: "alice", PasswordHash: hash})
	assert.ErrorIs(t, err, commands.ErrEventNotPublished)
	require.NotNil(t, user)

	_, err = f.repo.GetByID(context.Background(), user.ID)
	assert.NoError(t, err)
}
