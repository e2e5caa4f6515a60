package queries

import (
	"context"

	"github.com/dejobratic/opsapi/internal/agents/domain"
	"github.com/dejobratic/opsapi/internal/agents/metrics"
	"github.com/dejobratic/opsapi/internal/agents/ports"
	"github.com/dejobratic/opsapi/internal/pagination"
)

type ListIssuedTasksQuery struct {
	AgentID string
	Plan    pagination.Plan
}

type Handler struct {
	repo    ports.Repository
	metrics *metrics.Metrics
}

func NewHandler(repo ports.Repository, metrics *metrics.Metrics) *Handler {
	return &Handler{repo: repo, metrics: metrics}
}

func (h *Handler) Get(ctx context.Context, id string) (*domain.Agent, error) {
	return h.repo.GetByID(ctx, id)
}

// ListIssuedTasks pages an agent's task history. An unknown agent is
// ErrNotFound rather than an empty page.
func (h *Handler) ListIssuedTasks(ctx context.Context, query ListIssuedTasksQuery) (pagination.Page[domain.IssuedTask], error) {
	if _, err := h.repo.GetByID(ctx, query.AgentID); err != nil {
		return pagination.Page[domain.IssuedTask]{}, err
	}

	rows, err := h.repo.ListIssuedTasks(ctx, ports.TaskHistoryFilter{AgentID: query.AgentID, Plan: query.Plan})
	if err != nil {
		return pagination.Page[domain.IssuedTask]{}, err
	}

	page := pagination.Paginate(rows, query.Plan.Limit, domain.IssuedTask.Key)
	h.metrics.RecordHistoryPage(ctx, len(page.Items), page.NextCursor != nil)
	return page, nil
}
