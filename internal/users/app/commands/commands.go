package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dejobratic/opsapi/internal/auth"
	engports "github.com/dejobratic/opsapi/internal/engagements/ports"
	"github.com/dejobratic/opsapi/internal/events"
	"github.com/dejobratic/opsapi/internal/users/domain"
	"github.com/dejobratic/opsapi/internal/users/metrics"
	"github.com/dejobratic/opsapi/internal/users/ports"
)

// ErrEventNotPublished marks a persisted write whose event was not delivered.
var ErrEventNotPublished = errors.New("event not published")

var ErrEngagementsRequired = fmt.Errorf("%w: engagement_uuids must not be empty", domain.ErrInvalid)

const (
	EventCreated            events.Type = "user.created"
	EventUpdated            events.Type = "user.updated"
	EventDeleted            events.Type = "user.deleted"
	EventMembershipsChanged events.Type = "user.memberships_changed"
)

type CreateUserCommand struct {
	Username     string
	PasswordHash string
	GlobalRole   auth.Role
	Actor        string
}

type SetStatusCommand struct {
	UserID string
	Status domain.Status
	Actor  string
}

type SetRoleCommand struct {
	UserID string
	Role   auth.Role
	Actor  string
}

type DeleteUserCommand struct {
	UserID string
	Actor  string
}

type AddEngagementsCommand struct {
	UserID        string
	EngagementIDs []string
	Actor         string
}

type RemoveEngagementCommand struct {
	UserID       string
	EngagementID string
	Actor        string
}

type Handler struct {
	repo        ports.Repository
	engagements ports.Engagements
	events      events.Publisher
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewHandler(repo ports.Repository, engagements ports.Engagements, publisher events.Publisher, metrics *metrics.Metrics, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{repo: repo, engagements: engagements, events: publisher, metrics: metrics, now: now}
}

// Create stores a new enabled account. An empty role defaults to Analyst.
func (h *Handler) Create(ctx context.Context, cmd CreateUserCommand) (user *domain.User, err error) {
	defer func() { h.metrics.RecordWrite(ctx, "create", err) }()

	role := cmd.GlobalRole
	if role == "" {
		role = auth.RoleAnalyst
	}
	u := domain.User{
		ID:            uuid.NewString(),
		Username:      strings.TrimSpace(cmd.Username),
		PasswordHash:  cmd.PasswordHash,
		AccountStatus: domain.StatusEnabled,
		GlobalRole:    role,
		CreatedAt:     h.now().UTC().Truncate(time.Microsecond),
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}

	if err := h.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	return &u, h.publish(ctx, EventCreated, u.ID, cmd.Actor)
}

func (h *Handler) SetStatus(ctx context.Context, cmd SetStatusCommand) (user *domain.User, err error) {
	defer func() { h.metrics.RecordWrite(ctx, "set_status", err) }()

	if !cmd.Status.Valid() {
		return nil, domain.ErrUnknownStatus
	}

	user, err = h.repo.SetStatus(ctx, cmd.UserID, cmd.Status)
	if err != nil {
		return nil, err
	}

	return user, h.publish(ctx, EventUpdated, user.ID, cmd.Actor)
}

func (h *Handler) SetRole(ctx context.Context, cmd SetRoleCommand) (user *domain.User, err error) {
	defer func() { h.metrics.RecordWrite(ctx, "set_role", err) }()

	if !cmd.Role.Valid() {
		return nil, domain.ErrUnknownRole
	}

	user, err = h.repo.SetRole(ctx, cmd.UserID, cmd.Role)
	if err != nil {
		return nil, err
	}

	return user, h.publish(ctx, EventUpdated, user.ID, cmd.Actor)
}

func (h *Handler) Delete(ctx context.Context, cmd DeleteUserCommand) (err error) {
	defer func() { h.metrics.RecordWrite(ctx, "delete", err) }()

	if err := h.repo.Delete(ctx, cmd.UserID); err != nil {
		return err
	}

	return h.publish(ctx, EventDeleted, cmd.UserID, cmd.Actor)
}

// AddEngagements grants the user membership in every listed engagement.
// Duplicates in the list and memberships the user already holds are
// ignored. Nothing is written when any engagement is unknown.
func (h *Handler) AddEngagements(ctx context.Context, cmd AddEngagementsCommand) (err error) {
	defer func() { h.metrics.RecordWrite(ctx, "add_engagements", err) }()

	ids := dedupe(cmd.EngagementIDs)
	if len(ids) == 0 {
		return ErrEngagementsRequired
	}

	if _, err := h.repo.GetByID(ctx, cmd.UserID); err != nil {
		return err
	}
	for _, id := range ids {
		if err := h.requireEngagement(ctx, id); err != nil {
			return err
		}
	}

	if err := h.repo.AddEngagements(ctx, cmd.UserID, ids); err != nil {
		return err
	}

	return h.publish(ctx, EventMembershipsChanged, cmd.UserID, cmd.Actor)
}

func (h *Handler) RemoveEngagement(ctx context.Context, cmd RemoveEngagementCommand) (err error) {
	defer func() { h.metrics.RecordWrite(ctx, "remove_engagement", err) }()

	if _, err := h.repo.GetByID(ctx, cmd.UserID); err != nil {
		return err
	}

	if err := h.repo.RemoveEngagement(ctx, cmd.UserID, cmd.EngagementID); err != nil {
		return err
	}

	return h.publish(ctx, EventMembershipsChanged, cmd.UserID, cmd.Actor)
}

func (h *Handler) requireEngagement(ctx context.Context, id string) error {
	_, err := h.engagements.GetByID(ctx, id)
	if errors.Is(err, engports.ErrNotFound) {
		return fmt.Errorf("%w: %s", ports.ErrEngagementNotFound, id)
	}
	return err
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (h *Handler) publish(ctx context.Context, eventType events.Type, id, actor string) error {
	if err := h.events.Publish(ctx, events.Event{Type: eventType, ResourceID: id, Actor: actor}); err != nil {
		return fmt.Errorf("%w: %w", ErrEventNotPublished, err)
	}
	return nil
}
