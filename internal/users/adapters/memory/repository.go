package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/dejobratic/opsapi/internal/auth"
	engdomain "github.com/dejobratic/opsapi/internal/engagements/domain"
	engports "github.com/dejobratic/opsapi/internal/engagements/ports"
	"github.com/dejobratic/opsapi/internal/pagination"
	"github.com/dejobratic/opsapi/internal/users/domain"
	"github.com/dejobratic/opsapi/internal/users/ports"
)

// Repository keeps users and memberships in memory. Membership listings
// read engagement details from engagements and skip entries that no longer
// resolve.
type Repository struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	memberships map[string]map[string]struct{}
	engagements ports.Engagements
}

func NewRepository(engagements ports.Engagements) *Repository {
	return &Repository{
		users:       make(map[string]domain.User),
		memberships: make(map[string]map[string]struct{}),
		engagements: engagements,
	}
}

func (r *Repository) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Username == user.Username {
			return ports.ErrUsernameTaken
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *Repository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &user, nil
}

func (r *Repository) SetStatus(_ context.Context, id string, status domain.Status) (*domain.User, error) {
	return r.update(id, func(u *domain.User) { u.AccountStatus = status })
}

func (r *Repository) SetRole(_ context.Context, id string, role auth.Role) (*domain.User, error) {
	return r.update(id, func(u *domain.User) { u.GlobalRole = role })
}

func (r *Repository) update(id string, apply func(*domain.User)) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	apply(&user)
	r.users[id] = user
	return &user, nil
}

func (r *Repository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return ports.ErrNotFound
	}
	delete(r.users, id)
	delete(r.memberships, id)
	return nil
}

func (r *Repository) ListEngagements(ctx context.Context, filter ports.MembershipFilter) ([]engdomain.Engagement, error) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.memberships[filter.UserID]))
	for id := range r.memberships[filter.UserID] {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	rows := make([]engdomain.Engagement, 0, len(ids))
	for _, id := range ids {
		e, err := r.engagements.GetByID(ctx, id)
		if errors.Is(err, engports.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, *e)
	}

	return pagination.Apply(rows, filter.Plan, engdomain.Engagement.Key), nil
}

func (r *Repository) AddEngagements(_ context.Context, userID string, engagementIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userID]; !ok {
		return ports.ErrNotFound
	}
	set, ok := r.memberships[userID]
	if !ok {
		set = make(map[string]struct{}, len(engagementIDs))
		r.memberships[userID] = set
	}
	for _, id := range engagementIDs {
		set[id] = struct{}{}
	}
	return nil
}

func (r *Repository) RemoveEngagement(_ context.Context, userID, engagementID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userID]; !ok {
		return ports.ErrNotFound
	}
	delete(r.memberships[userID], engagementID)
	return nil
}
