package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dejobratic/opsapi/internal/endpoints/domain"
	"github.com/dejobratic/opsapi/internal/endpoints/metrics"
	"github.com/dejobratic/opsapi/internal/endpoints/ports"
	engports "github.com/dejobratic/opsapi/internal/engagements/ports"
	"github.com/dejobratic/opsapi/internal/events"
)

// ErrEventNotPublished marks a persisted write whose event was not delivered.
var ErrEventNotPublished = errors.New("event not published")

// ErrEngagementForbidden means the caller is not scoped to the engagement
// the endpoint is filed under.
var ErrEngagementForbidden = errors.New("no access to engagement")

var (
	ErrEmptyPatch     = fmt.Errorf("%w: at least one field must be set", domain.ErrInvalid)
	ErrEmptyInventory = fmt.Errorf("%w: at least one inventory field must be set", domain.ErrInvalid)
)

const (
	EventCreated          events.Type = "endpoint.created"
	EventUpdated          events.Type = "endpoint.updated"
	EventInventoryUpdated events.Type = "endpoint.inventory_updated"
)

// Access reports whether the caller may touch an engagement. A nil Access
// allows every engagement.
type Access func(engagementID string) bool

func (a Access) check(engagementID string) error {
	if a != nil && !a(engagementID) {
		return ErrEngagementForbidden
	}
	return nil
}

type CreateEndpointCommand struct {
	EngagementID string
	AgentID      *string
	OSVersion    *string
	IP           []string
	Gateway      []string
	Inventory    domain.Inventory
	Actor        string
	Access       Access
}

type UpdateEndpointCommand struct {
	ID     string
	Patch  domain.Patch
	Actor  string
	Access Access
}

type UploadInventoryCommand struct {
	ID        string
	Inventory domain.Inventory
	Actor     string
	Access    Access
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

func (h *Handler) Create(ctx context.Context, cmd CreateEndpointCommand) (endpoint *domain.Endpoint, err error) {
	defer func() { h.metrics.RecordWrite(ctx, "create", err) }()

	ip, err := domain.NormalizeAddresses(cmd.IP)
	if err != nil {
		return nil, err
	}
	gateway, err := domain.NormalizeAddresses(cmd.Gateway)
	if err != nil {
		return nil, err
	}
	inventory, err := cmd.Inventory.Normalize()
	if err != nil {
		return nil, err
	}

	e := domain.Endpoint{
		ID:           uuid.NewString(),
		EngagementID: cmd.EngagementID,
		AgentID:      cmd.AgentID,
		OSVersion:    cmd.OSVersion,
		IP:           ip,
		Gateway:      gateway,
		Inventory:    inventory,
		CreatedAt:    h.now().UTC().Truncate(time.Microsecond),
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := cmd.Access.check(e.EngagementID); err != nil {
		return nil, err
	}
	if err := h.requireEngagement(ctx, e.EngagementID); err != nil {
		return nil, err
	}

	if err := h.repo.Create(ctx, e); err != nil {
		return nil, err
	}

	return &e, h.publish(ctx, EventCreated, e.ID, cmd.Actor)
}

func (h *Handler) Update(ctx context.Context, cmd UpdateEndpointCommand) (endpoint *domain.Endpoint, err error) {
	defer func() { h.metrics.RecordWrite(ctx, "update", err) }()

	patch, err := normalizePatch(cmd.Patch)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return nil, ErrEmptyPatch
	}

	current, err := h.repo.GetByID(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	if err := cmd.Access.check(current.EngagementID); err != nil {
		return nil, err
	}
	if patch.EngagementID != nil && *patch.EngagementID != current.EngagementID {
		if err := cmd.Access.check(*patch.EngagementID); err != nil {
			return nil, err
		}
		if err := h.requireEngagement(ctx, *patch.EngagementID); err != nil {
			return nil, err
		}
	}
	if err := patch.Apply(*current).Validate(); err != nil {
		return nil, err
	}

	updated, err := h.repo.Update(ctx, cmd.ID, patch)
	if err != nil {
		return nil, err
	}

	return updated, h.publish(ctx, EventUpdated, cmd.ID, cmd.Actor)
}

// UploadInventory overwrites the inventory parts present in the upload and
// keeps the others.
func (h *Handler) UploadInventory(ctx context.Context, cmd UploadInventoryCommand) (err error) {
	defer func() { h.metrics.RecordWrite(ctx, "inventory", err) }()

	inventory, err := cmd.Inventory.Normalize()
	if err != nil {
		return err
	}
	if inventory.IsEmpty() {
		return ErrEmptyInventory
	}

	current, err := h.repo.GetByID(ctx, cmd.ID)
	if err != nil {
		return err
	}
	if err := cmd.Access.check(current.EngagementID); err != nil {
		return err
	}

	if err := h.repo.UpdateInventory(ctx, cmd.ID, inventory); err != nil {
		return err
	}

	return h.publish(ctx, EventInventoryUpdated, cmd.ID, cmd.Actor)
}

func (h *Handler) requireEngagement(ctx context.Context, id string) error {
	_, err := h.engagements.GetByID(ctx, id)
	if errors.Is(err, engports.ErrNotFound) {
		return ports.ErrEngagementNotFound
	}
	return err
}

func normalizePatch(p domain.Patch) (domain.Patch, error) {
	if p.IP != nil {
		ip, err := domain.NormalizeAddresses(*p.IP)
		if err != nil {
			return domain.Patch{}, err
		}
		p.IP = &ip
	}
	if p.Gateway != nil {
		gateway, err := domain.NormalizeAddresses(*p.Gateway)
		if err != nil {
			return domain.Patch{}, err
		}
		p.Gateway = &gateway
	}

	inventory, err := p.Inventory.Normalize()
	if err != nil {
		return domain.Patch{}, err
	}
	p.Inventory = inventory
	return p, nil
}

func (h *Handler) publish(ctx context.Context, eventType events.Type, id, actor string) error {
	if err := h.events.Publish(ctx, events.Event{Type: eventType, ResourceID: id, Actor: actor}); err != nil {
		return fmt.Errorf("%w: %w", ErrEventNotPublished, err)
	}
	return nil
}
