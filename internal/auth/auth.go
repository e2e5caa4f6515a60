// Package auth carries the caller identity asserted by the fronting identity
// proxy and enforces role and engagement guards on routes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrUnknownRole     = errors.New("unknown role")
)

// Role is an RBAC role. Roles are totally ordered by Rank.
type Role string

const (
	RoleAnalyst  Role = "Analyst"
	RoleOperator Role = "Operator"
	RoleAdmin    Role = "Admin"
)

// Rank orders roles Analyst < Operator < Admin. Unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleAnalyst:
		return 1
	case RoleOperator:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

func (r Role) Valid() bool {
	return r.Rank() > 0
}

// RoleFromRank is the inverse of Rank.
func RoleFromRank(rank int) (Role, error) {
	for _, r := range []Role{RoleAnalyst, RoleOperator, RoleAdmin} {
		if r.Rank() == rank {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: rank %d", ErrUnknownRole, rank)
}

// ParseRole matches role names case-insensitively.
func ParseRole(value string) (Role, error) {
	for _, r := range []Role{RoleAnalyst, RoleOperator, RoleAdmin} {
		if strings.EqualFold(strings.TrimSpace(value), string(r)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, value)
}

// Principal is the authenticated caller.
type Principal struct {
	Subject     string
	Roles       []Role
	Engagements []string
}

// Highest returns the top ranked role held, or "" when none.
func (p Principal) Highest() Role {
	var best Role
	for _, r := range p.Roles {
		if r.Rank() > best.Rank() {
			best = r
		}
	}
	return best
}

// Satisfies reports whether the principal holds min or a higher role.
func (p Principal) Satisfies(min Role) bool {
	return p.Highest().Rank() >= min.Rank()
}

// CanAccessEngagement reports whether the principal is scoped to the
// engagement. Admins reach every engagement.
func (p Principal) CanAccessEngagement(id string) bool {
	if p.Satisfies(RoleAdmin) {
		return true
	}
	return slices.Contains(p.Engagements, id)
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
