package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dejobratic/opsapi/internal/engagements/domain"
	"github.com/dejobratic/opsapi/internal/engagements/ports"
	"github.com/dejobratic/opsapi/internal/events"
)

// ErrEventNotPublished marks a write that was persisted but whose lifecycle
// event could not be delivered. The returned record is valid.
var ErrEventNotPublished = errors.New("event not published")

const (
	EventCreated events.Type = "engagement.created"
	EventUpdated events.Type = "engagement.updated"
	EventDeleted events.Type = "engagement.deleted"
)

type CreateEngagementCommand struct {
	Name    string
	StartTS time.Time
	EndTS   *time.Time
	Actor   string
}

type CreateHandler interface {
	Handle(ctx context.Context, cmd CreateEngagementCommand) (*domain.Engagement, error)
}

type CreateEngagementCommandHandler struct {
	repo   ports.Repository
	events events.Publisher
	now    func() time.Time
}

func NewCreateEngagementCommandHandler(repo ports.Repository, publisher events.Publisher, now func() time.Time) *CreateEngagementCommandHandler {
	if now == nil {
		now = time.Now
	}
	return &CreateEngagementCommandHandler{
		repo:   repo,
		events: publisher,
		now:    now,
	}
}

func (h *CreateEngagementCommandHandler) Handle(ctx context.Context, cmd CreateEngagementCommand) (*domain.Engagement, error) {
	engagement := domain.Engagement{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(cmd.Name),
		StartTS:   domain.Timestamp(cmd.StartTS),
		CreatedAt: domain.Timestamp(h.now()),
	}
	if cmd.EndTS != nil {
		end := domain.Timestamp(*cmd.EndTS)
		engagement.EndTS = &end
	}

	if err := engagement.Validate(); err != nil {
		return nil, err
	}

	if err := h.repo.Create(ctx, engagement); err != nil {
		return nil, err
	}

	if err := h.events.Publish(ctx, events.Event{Type: EventCreated, ResourceID: engagement.ID, Actor: cmd.Actor}); err != nil {
		return &engagement, fmt.Errorf("%w: %w", ErrEventNotPublished, err)
	}

	return &engagement, nil
}
