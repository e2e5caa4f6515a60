package queries

import (
	"context"

	engdomain "github.com/dejobratic/opsapi/internal/engagements/domain"
	"github.com/dejobratic/opsapi/internal/pagination"
	"github.com/dejobratic/opsapi/internal/users/domain"
	"github.com/dejobratic/opsapi/internal/users/metrics"
	"github.com/dejobratic/opsapi/internal/users/ports"
)

type ListEngagementsQuery struct {
	UserID string
	Plan   pagination.Plan
}

type Handler struct {
	repo    ports.Repository
	metrics *metrics.Metrics
}

func NewHandler(repo ports.Repository, metrics *metrics.Metrics) *Handler {
	return &Handler{repo: repo, metrics: metrics}
}

func (h *Handler) Get(ctx context.Context, id string) (*domain.User, error) {
	return h.repo.GetByID(ctx, id)
}

// ListEngagements pages the engagements a user belongs to. An unknown user
// is ErrNotFound rather than an empty page.
func (h *Handler) ListEngagements(ctx context.Context, query ListEngagementsQuery) (pagination.Page[engdomain.Engagement], error) {
	if _, err := h.repo.GetByID(ctx, query.UserID); err != nil {
		return pagination.Page[engdomain.Engagement]{}, err
	}

	rows, err := h.repo.ListEngagements(ctx, ports.MembershipFilter{UserID: query.UserID, Plan: query.Plan})
	if err != nil {
		return pagination.Page[engdomain.Engagement]{}, err
	}

	page := pagination.Paginate(rows, query.Plan.Limit, engdomain.Engagement.Key)
	h.metrics.RecordMembershipPage(ctx, len(page.Items), page.NextCursor != nil)
	return page, nil
}
