package ports

import (
	"context"
	"errors"

	"github.com/dejobratic/opsapi/internal/auth"
	"github.com/dejobratic/opsapi/internal/pagination"
	"github.com/dejobratic/opsapi/internal/tasking/domain"
)

type Repository interface {
	Create(ctx context.Context, task domain.Task) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	// GetByLongName matches the exact, trimmed task name.
	GetByLongName(ctx context.Context, name string) (*domain.Task, error)
	// List returns at most filter.Plan.FetchLimit() rows in plan order.
	List(ctx context.Context, filter ListFilter) ([]domain.Task, error)
	Update(ctx context.Context, id string, patch domain.Patch) (*domain.Task, error)
	Delete(ctx context.Context, id string) error
}

// ListFilter narrows list queries. An empty MinRole selects every task.
type ListFilter struct {
	MinRole auth.Role
	Plan    pagination.Plan
}

var (
	ErrNotFound      = errors.New("task not found")
	ErrLongNameTaken = errors.New("task name already in use")
)
