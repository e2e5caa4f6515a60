package ports

import (
	"context"
	"errors"

	"github.com/dejobratic/opsapi/internal/auth"
	engdomain "github.com/dejobratic/opsapi/internal/engagements/domain"
	"github.com/dejobratic/opsapi/internal/pagination"
	"github.com/dejobratic/opsapi/internal/users/domain"
)

type Repository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	SetStatus(ctx context.Context, id string, status domain.Status) (*domain.User, error)
	SetRole(ctx context.Context, id string, role auth.Role) (*domain.User, error)
	// Delete removes the user and its memberships.
	Delete(ctx context.Context, id string) error
	// ListEngagements returns at most filter.Plan.FetchLimit() engagements the
	// user belongs to, in plan order.
	ListEngagements(ctx context.Context, filter MembershipFilter) ([]engdomain.Engagement, error)
	// AddEngagements adds memberships. Existing memberships are kept.
	AddEngagements(ctx context.Context, userID string, engagementIDs []string) error
	// RemoveEngagement drops one membership. Removing an absent membership
	// is not an error.
	RemoveEngagement(ctx context.Context, userID, engagementID string) error
}

type MembershipFilter struct {
	UserID string
	Plan   pagination.Plan
}

// Engagements resolves the engagements a membership refers to.
type Engagements interface {
	GetByID(ctx context.Context, id string) (*engdomain.Engagement, error)
}

var (
	ErrNotFound           = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrEngagementNotFound = errors.New("engagement not found")
)
