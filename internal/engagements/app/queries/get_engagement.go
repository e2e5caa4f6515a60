package queries

import (
	"context"
	"errors"
	"strings"

	"github.com/dejobratic/opsapi/internal/engagements/domain"
	"github.com/dejobratic/opsapi/internal/engagements/ports"
)

// GetEngagementQuery represents a request to retrieve an engagement by its ID.
type GetEngagementQuery struct {
	EngagementID string
}

// GetEngagementQueryHandler executes GetEngagementQuery.
type GetEngagementQueryHandler struct {
	repo ports.Repository
}

func NewGetEngagementQueryHandler(repo ports.Repository) *GetEngagementQueryHandler {
	return &GetEngagementQueryHandler{repo: repo}
}

func (h *GetEngagementQueryHandler) Handle(ctx context.Context, query GetEngagementQuery) (*domain.Engagement, error) {
	if strings.TrimSpace(query.EngagementID) == "" {
		return nil, errors.New("engagement_uuid is required")
	}
	return h.repo.GetByID(ctx, query.EngagementID)
}
