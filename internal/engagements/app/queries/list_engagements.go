package queries

import (
	"context"
	"strings"
	"time"

	"github.com/dejobratic/opsapi/internal/engagements/domain"
	"github.com/dejobratic/opsapi/internal/engagements/metrics"
	"github.com/dejobratic/opsapi/internal/engagements/ports"
	"github.com/dejobratic/opsapi/internal/pagination"
)

// ListEngagementsQuery selects one page of engagements.
type ListEngagementsQuery struct {
	ActiveOnly   bool
	NameContains string
	Plan         pagination.Plan
}

type ListEngagementsQueryHandler struct {
	repo    ports.Repository
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewListEngagementsQueryHandler(repo ports.Repository, metrics *metrics.Metrics, now func() time.Time) *ListEngagementsQueryHandler {
	if now == nil {
		now = time.Now
	}
	return &ListEngagementsQueryHandler{repo: repo, metrics: metrics, now: now}
}

func (h *ListEngagementsQueryHandler) Handle(ctx context.Context, query ListEngagementsQuery) (pagination.Page[domain.Engagement], error) {
	rows, err := h.repo.List(ctx, ports.ListFilter{
		ActiveOnly:   query.ActiveOnly,
		NameContains: strings.TrimSpace(query.NameContains),
		Now:          h.now().UTC(),
		Plan:         query.Plan,
	})
	if err != nil {
		return pagination.Page[domain.Engagement]{}, err
	}

	page := pagination.Paginate(rows, query.Plan.Limit, domain.Engagement.Key)
	h.metrics.RecordListPage(ctx, len(page.Items), page.NextCursor != nil)
	return page, nil
}
