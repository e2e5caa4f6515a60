package ports

import (
	"context"
	"errors"

	"github.com/dejobratic/opsapi/internal/endpoints/domain"
	engdomain "github.com/dejobratic/opsapi/internal/engagements/domain"
	"github.com/dejobratic/opsapi/internal/pagination"
)

type Repository interface {
	Create(ctx context.Context, endpoint domain.Endpoint) error
	GetByID(ctx context.Context, id string) (*domain.Endpoint, error)
	// List returns endpoint summaries, at most filter.Plan.FetchLimit() rows
	// in plan order.
	List(ctx context.Context, filter ListFilter) ([]domain.Endpoint, error)
	Update(ctx context.Context, id string, patch domain.Patch) (*domain.Endpoint, error)
	UpdateInventory(ctx context.Context, id string, inventory domain.Inventory) error
}

// ListFilter narrows list queries. A nil EngagementScope reaches every
// engagement; an empty one reaches none. IP is in canonical form.
type ListFilter struct {
	EngagementScope []string
	EngagementID    string
	AgentID         string
	OSContains      string
	IP              string
	Plan            pagination.Plan
}

// Engagements looks up the engagement an endpoint is filed under.
type Engagements interface {
	GetByID(ctx context.Context, id string) (*engdomain.Engagement, error)
}

var (
	ErrNotFound           = errors.New("endpoint not found")
	ErrEngagementNotFound = errors.New("engagement not found")
)
