package ports

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/opsapi/internal/agents/domain"
	"github.com/dejobratic/opsapi/internal/pagination"
	taskdomain "github.com/dejobratic/opsapi/internal/tasking/domain"
)

type Repository interface {
	Create(ctx context.Context, agent domain.Agent) error
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	// RecordCheckIn logs a check-in at the given time and advances last_seen.
	RecordCheckIn(ctx context.Context, id string, at time.Time) (*domain.Agent, error)
	MarkUninstalled(ctx context.Context, id string, at time.Time) (*domain.Agent, error)
	CreateIssuedTask(ctx context.Context, task domain.IssuedTask) error
	// ListIssuedTasks returns at most filter.Plan.FetchLimit() rows in plan order.
	ListIssuedTasks(ctx context.Context, filter TaskHistoryFilter) ([]domain.IssuedTask, error)
}

type TaskHistoryFilter struct {
	AgentID string
	Plan    pagination.Plan
}

// TaskCatalog resolves the catalog entry an issued task refers to.
type TaskCatalog interface {
	GetByID(ctx context.Context, id string) (*taskdomain.Task, error)
	GetByLongName(ctx context.Context, name string) (*taskdomain.Task, error)
}

var (
	ErrNotFound        = errors.New("agent not found")
	ErrAlreadyEnrolled = errors.New("agent already enrolled")
)
