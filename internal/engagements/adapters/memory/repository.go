package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/dejobratic/opsapi/internal/engagements/domain"
	"github.com/dejobratic/opsapi/internal/engagements/ports"
	"github.com/dejobratic/opsapi/internal/pagination"
)

// Repository provides an in-memory store useful for local development and tests.
type Repository struct {
	mu          sync.RWMutex
	engagements map[string]domain.Engagement
}

// NewRepository constructs a new in-memory repository.
func NewRepository() *Repository {
	return &Repository{engagements: make(map[string]domain.Engagement)}
}

// Create stores a new engagement. Names are unique case-sensitively, like
// the Postgres constraint.
func (r *Repository) Create(_ context.Context, engagement domain.Engagement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nameTaken(engagement.Name, "") {
		return ports.ErrNameTaken
	}
	r.engagements[engagement.ID] = engagement
	return nil
}

// GetByID fetches a single engagement by identifier.
func (r *Repository) GetByID(_ context.Context, id string) (*domain.Engagement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engagement, ok := r.engagements[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &engagement, nil
}

// List applies the filter and the keyset plan.
func (r *Repository) List(_ context.Context, filter ports.ListFilter) ([]domain.Engagement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(filter.NameContains)
	result := make([]domain.Engagement, 0, len(r.engagements))
	for _, e := range r.engagements {
		if filter.ActiveOnly && !e.IsActive(filter.Now) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.Name), needle) {
			continue
		}
		result = append(result, e)
	}

	return pagination.Apply(result, filter.Plan, domain.Engagement.Key), nil
}

// Update applies the patch and returns the stored engagement.
func (r *Repository) Update(_ context.Context, id string, patch domain.Patch) (*domain.Engagement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.engagements[id]
	if !ok {
		return nil, ports.ErrNotFound
	}

	updated := patch.Apply(current)
	if patch.Name != nil && r.nameTaken(updated.Name, id) {
		return nil, ports.ErrNameTaken
	}

	r.engagements[id] = updated
	return &updated, nil
}

// Delete removes the engagement.
func (r *Repository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.engagements[id]; !ok {
		return ports.ErrNotFound
	}
	delete(r.engagements, id)
	return nil
}

func (r *Repository) nameTaken(name, exceptID string) bool {
	for id, e := range r.engagements {
		if id != exceptID && e.Name == name {
			return true
		}
	}
	return false
}
