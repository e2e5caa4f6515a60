package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/dejobratic/opsapi/internal/engagements/domain"
	"github.com/dejobratic/opsapi/internal/engagements/ports"
	"github.com/dejobratic/opsapi/internal/events"
)

// ErrEmptyPatch rejects an update that changes nothing.
var ErrEmptyPatch = fmt.Errorf("%w: at least one field must be set", domain.ErrInvalid)

type UpdateEngagementCommand struct {
	ID    string
	Patch domain.Patch
	Actor string
}

type UpdateEngagementCommandHandler struct {
	repo   ports.Repository
	events events.Publisher
}

func NewUpdateEngagementCommandHandler(repo ports.Repository, publisher events.Publisher) *UpdateEngagementCommandHandler {
	return &UpdateEngagementCommandHandler{repo: repo, events: publisher}
}

// Handle validates the merged record before writing so the window invariant
// holds for partial updates too.
func (h *UpdateEngagementCommandHandler) Handle(ctx context.Context, cmd UpdateEngagementCommand) (*domain.Engagement, error) {
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

	if err := h.events.Publish(ctx, events.Event{Type: EventUpdated, ResourceID: cmd.ID, Actor: cmd.Actor}); err != nil {
		return updated, fmt.Errorf("%w: %w", ErrEventNotPublished, err)
	}

	return updated, nil
}

type DeleteEngagementCommand struct {
	ID    string
	Actor string
}

type DeleteEngagementCommandHandler struct {
	repo   ports.Repository
	events events.Publisher
}

func NewDeleteEngagementCommandHandler(repo ports.Repository, publisher events.Publisher) *DeleteEngagementCommandHandler {
	return &DeleteEngagementCommandHandler{repo: repo, events: publisher}
}

func (h *DeleteEngagementCommandHandler) Handle(ctx context.Context, cmd DeleteEngagementCommand) error {
	if cmd.ID == "" {
		return errors.New("engagement id is required")
	}

	if err := h.repo.Delete(ctx, cmd.ID); err != nil {
		return err
	}

	if err := h.events.Publish(ctx, events.Event{Type: EventDeleted, ResourceID: cmd.ID, Actor: cmd.Actor}); err != nil {
		return fmt.Errorf("%w: %w", ErrEventNotPublished, err)
	}

	return nil
}
