package ports

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/opsapi/internal/engagements/domain"
	"github.com/dejobratic/opsapi/internal/pagination"
)

// Repository exposes persistence operations required by the application layer.
type Repository interface {
	Create(ctx context.Context, engagement domain.Engagement) error
	GetByID(ctx context.Context, id string) (*domain.Engagement, error)
	// List returns at most filter.Plan.FetchLimit() rows in plan order.
	List(ctx context.Context, filter ListFilter) ([]domain.Engagement, error)
	Update(ctx context.Context, id string, patch domain.Patch) (*domain.Engagement, error)
	Delete(ctx context.Context, id string) error
}

// ListFilter narrows list queries. Now anchors ActiveOnly.
type ListFilter struct {
	ActiveOnly   bool
	NameContains string
	Now          time.Time
	Plan         pagination.Plan
}

var (
	// ErrNotFound is returned when the requested engagement does not exist.
	ErrNotFound = errors.New("engagement not found")
	// ErrNameTaken is returned when another engagement already uses the name.
	ErrNameTaken = errors.New("engagement name already in use")
)
