package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dejobratic/opsapi/internal/auth"
	"github.com/dejobratic/opsapi/internal/events"
	"github.com/dejobratic/opsapi/internal/tasking/domain"
	"github.com/dejobratic/opsapi/internal/tasking/metrics"
	"github.com/dejobratic/opsapi/internal/tasking/ports"
)

// ErrEventNotPublished marks a persisted write whose event was not delivered.
var ErrEventNotPublished = errors.New("event not published")

var ErrEmptyPatch = fmt.Errorf("%w: at least one field must be set", domain.ErrInvalid)

const (
	EventCreated events.Type = "task.created"
	EventUpdated events.Type = "task.updated"
	EventDeleted events.Type = "task.deleted"
)

type CreateTaskCommand struct {
	LongName   string
	Permission auth.Role
	Actor      string
}

type UpdateTaskCommand struct {
	ID    string
	Patch domain.Patch
	Actor string
}

type DeleteTaskCommand struct {
	ID    string
	Actor string
}

// Handler executes every tasking write. Each write records a metric and,
// once durable, publishes a lifecycle event.
type Handler struct {
	repo    ports.Repository
	events  events.Publisher
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewHandler(repo ports.Repository, publisher events.Publisher, metrics *metrics.Metrics, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{repo: repo, events: publisher, metrics: metrics, now: now}
}

func (h *Handler) Create(ctx context.Context, cmd CreateTaskCommand) (task *domain.Task, err error) {
	defer func() { h.metrics.RecordWrite(ctx, "create", err) }()

	t := domain.Task{
		ID:         uuid.NewString(),
		LongName:   strings.TrimSpace(cmd.LongName),
		Permission: cmd.Permission,
		CreatedAt:  h.now().UTC().Truncate(time.Microsecond),
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	if err := h.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	return &t, h.publish(ctx, EventCreated, t.ID, cmd.Actor)
}

func (h *Handler) Update(ctx context.Context, cmd UpdateTaskCommand) (task *domain.Task, err error) {
	defer func() { h.metrics.RecordWrite(ctx, "update", err) }()

	if cmd.Patch.IsEmpty() {
		return nil, ErrEmptyPatch
	}

	current, err := h.repo.GetByID(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	if err := cmd.Patch.Apply(*current).Validate(); err != nil {
		return nil, err
	}

	updated, err := h.repo.Update(ctx, cmd.ID, cmd.Patch)
	if err != nil {
		return nil, err
	}

	return updated, h.publish(ctx, EventUpdated, cmd.ID, cmd.Actor)
}

func (h *Handler) Delete(ctx context.Context, cmd DeleteTaskCommand) (err error) {
	defer func() { h.metrics.RecordWrite(ctx, "delete", err) }()

	if err := h.repo.Delete(ctx, cmd.ID); err != nil {
		return err
	}

	return h.publish(ctx, EventDeleted, cmd.ID, cmd.Actor)
}

func (h *Handler) publish(ctx context.Context, eventType events.Type, id, actor string) error {
	if err := h.events.Publish(ctx, events.Event{Type: eventType, ResourceID: id, Actor: actor}); err != nil {
		return fmt.Errorf("%w: %w", ErrEventNotPublished, err)
	}
	return nil
}
