package queries

import (
	"context"

	"github.com/dejobratic/opsapi/internal/endpoints/app/commands"
	"github.com/dejobratic/opsapi/internal/endpoints/domain"
	"github.com/dejobratic/opsapi/internal/endpoints/metrics"
	"github.com/dejobratic/opsapi/internal/endpoints/ports"
	"github.com/dejobratic/opsapi/internal/pagination"
)

// ListEndpointsQuery selects one page of endpoint summaries. Scope limits
// the engagements searched; nil searches all of them.
type ListEndpointsQuery struct {
	Scope        []string
	EngagementID string
	AgentID      string
	OSContains   string
	IP           string
	Plan         pagination.Plan
}

type Handler struct {
	repo    ports.Repository
	metrics *metrics.Metrics
}

func NewHandler(repo ports.Repository, metrics *metrics.Metrics) *Handler {
	return &Handler{repo: repo, metrics: metrics}
}

func (h *Handler) Get(ctx context.Context, id string, access commands.Access) (*domain.Endpoint, error) {
	endpoint, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if access != nil && !access(endpoint.EngagementID) {
		return nil, commands.ErrEngagementForbidden
	}
	return endpoint, nil
}

func (h *Handler) List(ctx context.Context, query ListEndpointsQuery) (pagination.Page[domain.Endpoint], error) {
	rows, err := h.repo.List(ctx, ports.ListFilter{
		EngagementScope: query.Scope,
		EngagementID:    query.EngagementID,
		AgentID:         query.AgentID,
		OSContains:      query.OSContains,
		IP:              query.IP,
		Plan:            query.Plan,
	})
	if err != nil {
		return pagination.Page[domain.Endpoint]{}, err
	}

	page := pagination.Paginate(rows, query.Plan.Limit, domain.Endpoint.Key)
	h.metrics.RecordListPage(ctx, len(page.Items), page.NextCursor != nil)
	return page, nil
}
