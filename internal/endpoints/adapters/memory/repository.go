package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/dejobratic/opsapi/internal/endpoints/domain"
	"github.com/dejobratic/opsapi/internal/endpoints/ports"
	"github.com/dejobratic/opsapi/internal/pagination"
)

// Repository keeps endpoints in memory. Engagement references are checked by
// the application layer, not here.
type Repository struct {
	mu        sync.RWMutex
	endpoints map[string]domain.Endpoint
}

func NewRepository() *Repository {
	return &Repository{endpoints: make(map[string]domain.Endpoint)}
}

func (r *Repository) Create(_ context.Context, endpoint domain.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.endpoints[endpoint.ID] = endpoint
	return nil
}

func (r *Repository) GetByID(_ context.Context, id string) (*domain.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	endpoint, ok := r.endpoints[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &endpoint, nil
}

func (r *Repository) List(_ context.Context, filter ports.ListFilter) ([]domain.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(filter.OSContains)
	result := make([]domain.Endpoint, 0, len(r.endpoints))
	for _, e := range r.endpoints {
		if filter.EngagementScope != nil && !slices.Contains(filter.EngagementScope, e.EngagementID) {
			continue
		}
		if filter.EngagementID != "" && e.EngagementID != filter.EngagementID {
			continue
		}
		if filter.AgentID != "" && (e.AgentID == nil || *e.AgentID != filter.AgentID) {
			continue
		}
		if needle != "" && (e.OSVersion == nil || !strings.Contains(strings.ToLower(*e.OSVersion), needle)) {
			continue
		}
		if filter.IP != "" && !e.HasAddress(filter.IP) {
			continue
		}
		result = append(result, e.Summary())
	}

	return pagination.Apply(result, filter.Plan, domain.Endpoint.Key), nil
}

func (r *Repository) Update(_ context.Context, id string, patch domain.Patch) (*domain.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.endpoints[id]
	if !ok {
		return nil, ports.ErrNotFound
	}

	updated := patch.Apply(current)
	r.endpoints[id] = updated
	return &updated, nil
}

func (r *Repository) UpdateInventory(_ context.Context, id string, inventory domain.Inventory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.endpoints[id]
	if !ok {
		return ports.ErrNotFound
	}

	current.Inventory = current.Inventory.Merge(inventory)
	r.endpoints[id] = current
	return nil
}
