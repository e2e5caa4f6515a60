package queries

import (
	"context"

	"github.com/dejobratic/opsapi/internal/auth"
	"github.com/dejobratic/opsapi/internal/pagination"
	"github.com/dejobratic/opsapi/internal/tasking/domain"
	"github.com/dejobratic/opsapi/internal/tasking/metrics"
	"github.com/dejobratic/opsapi/internal/tasking/ports"
)

// ListTasksQuery selects one page of the catalog. MinRole keeps tasks whose
// permission ranks at or above it.
type ListTasksQuery struct {
	MinRole auth.Role
	Plan    pagination.Plan
}

type Handler struct {
	repo    ports.Repository
	metrics *metrics.Metrics
}

func NewHandler(repo ports.Repository, metrics *metrics.Metrics) *Handler {
	return &Handler{repo: repo, metrics: metrics}
}

func (h *Handler) Get(ctx context.Context, id string) (*domain.Task, error) {
	return h.repo.GetByID(ctx, id)
}

func (h *Handler) List(ctx context.Context, query ListTasksQuery) (pagination.Page[domain.Task], error) {
	rows, err := h.repo.List(ctx, ports.ListFilter{MinRole: query.MinRole, Plan: query.Plan})
	if err != nil {
		return pagination.Page[domain.Task]{}, err
	}

	page := pagination.Paginate(rows, query.Plan.Limit, domain.Task.Key)
	h.metrics.RecordListPage(ctx, len(page.Items), page.NextCursor != nil)
	return page, nil
}
