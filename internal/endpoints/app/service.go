package app

import (
	"context"
	"time"

	"github.com/dejobratic/opsapi/internal/endpoints/app/commands"
	"github.com/dejobratic/opsapi/internal/endpoints/app/queries"
	"github.com/dejobratic/opsapi/internal/endpoints/domain"
	"github.com/dejobratic/opsapi/internal/endpoints/metrics"
	"github.com/dejobratic/opsapi/internal/endpoints/ports"
	"github.com/dejobratic/opsapi/internal/events"
	"github.com/dejobratic/opsapi/internal/pagination"
)

type Service struct {
	commands *commands.Handler
	queries  *queries.Handler
}

func NewService(repo ports.Repository, engagements ports.Engagements, publisher events.Publisher, metrics *metrics.Metrics, now func() time.Time) *Service {
	return &Service{
		commands: commands.NewHandler(repo, engagements, publisher, metrics, now),
		queries:  queries.NewHandler(repo, metrics),
	}
}

// CreateEndpointInput is the create payload. Inventory fields are inlined.
type CreateEndpointInput struct {
	EngagementID string   `json:"engagement_uuid" validate:"required,uuid"`
	AgentID      *string  `json:"agent_uuid" validate:"omitempty,uuid"`
	OSVersion    *string  `json:"os_version" validate:"omitempty,max=255"`
	IP           []string `json:"ip" validate:"omitempty,max=64,dive,ip"`
	Gateway      []string `json:"gateway" validate:"omitempty,max=64,dive,ip"`
	domain.Inventory
}

type UpdateEndpointInput struct {
	EngagementID *string   `json:"engagement_uuid" validate:"omitempty,uuid"`
	AgentID      *string   `json:"agent_uuid" validate:"omitempty,uuid"`
	OSVersion    *string   `json:"os_version" validate:"omitempty,max=255"`
	IP           *[]string `json:"ip" validate:"omitempty,max=64,dive,ip"`
	Gateway      *[]string `json:"gateway" validate:"omitempty,max=64,dive,ip"`
	domain.Inventory
}

func (s *Service) CreateEndpoint(ctx context.Context, actor string, access commands.Access, input CreateEndpointInput) (*domain.Endpoint, error) {
	return s.commands.Create(ctx, commands.CreateEndpointCommand{
		EngagementID: input.EngagementID,
		AgentID:      input.AgentID,
		OSVersion:    input.OSVersion,
		IP:           input.IP,
		Gateway:      input.Gateway,
		Inventory:    input.Inventory,
		Actor:        actor,
		Access:       access,
	})
}

func (s *Service) UpdateEndpoint(ctx context.Context, actor string, access commands.Access, id string, input UpdateEndpointInput) (*domain.Endpoint, error) {
	return s.commands.Update(ctx, commands.UpdateEndpointCommand{
		ID: id,
		Patch: domain.Patch{
			EngagementID: input.EngagementID,
			AgentID:      input.AgentID,
			OSVersion:    input.OSVersion,
			IP:           input.IP,
			Gateway:      input.Gateway,
			Inventory:    input.Inventory,
		},
		Actor:  actor,
		Access: access,
	})
}

func (s *Service) UploadInventory(ctx context.Context, actor string, access commands.Access, id string, inventory domain.Inventory) error {
	return s.commands.UploadInventory(ctx, commands.UploadInventoryCommand{
		ID:        id,
		Inventory: inventory,
		Actor:     actor,
		Access:    access,
	})
}

func (s *Service) GetEndpoint(ctx context.Context, access commands.Access, id string) (*domain.Endpoint, error) {
	return s.queries.Get(ctx, id, access)
}

func (s *Service) ListEndpoints(ctx context.Context, query queries.ListEndpointsQuery) (pagination.Page[domain.Endpoint], error) {
	return s.queries.List(ctx, query)
}
