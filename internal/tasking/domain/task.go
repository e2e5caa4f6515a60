// Package domain holds the tasking catalog model: named tasks gated by the
// minimum role allowed to issue them.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dejobratic/opsapi/internal/auth"
	"github.com/dejobratic/opsapi/internal/pagination"
)

const MaxLongNameLength = 255

var ErrInvalid = errors.New("invalid task")

var (
	ErrLongNameRequired = fmt.Errorf("%w: task_long_name is required", ErrInvalid)
	ErrLongNameTooLong  = fmt.Errorf("%w: task_long_name must be at most 255 characters", ErrInvalid)
	ErrUnknownRole      = fmt.Errorf("%w: task_permission must be one of Analyst, Operator, Admin", ErrInvalid)
)

type Task struct {
	ID         string    `json:"task_uuid"`
	LongName   string    `json:"task_long_name"`
	Permission auth.Role `json:"task_permission"`
	CreatedAt  time.Time `json:"created_at"`
}

func (t Task) Validate() error {
	name := strings.TrimSpace(t.LongName)
	if name == "" {
		return ErrLongNameRequired
	}
	if len(name) > MaxLongNameLength {
		return ErrLongNameTooLong
	}
	if !t.Permission.Valid() {
		return ErrUnknownRole
	}
	return nil
}

// Allows reports whether a caller holding role may issue the task.
func (t Task) Allows(role auth.Role) bool {
	return role.Rank() >= t.Permission.Rank()
}

func (t Task) Key() pagination.Cursor {
	return pagination.Cursor{Timestamp: t.CreatedAt, ID: t.ID}
}

// ParsePermission resolves a role name from a request into a task permission.
func ParsePermission(value string) (auth.Role, error) {
	role, err := auth.ParseRole(value)
	if err != nil {
		return "", ErrUnknownRole
	}
	return role, nil
}

type Patch struct {
	LongName   *string
	Permission *auth.Role
}

func (p Patch) IsEmpty() bool {
	return p.LongName == nil && p.Permission == nil
}

func (p Patch) Apply(t Task) Task {
	if p.LongName != nil {
		t.LongName = strings.TrimSpace(*p.LongName)
	}
	if p.Permission != nil {
		t.Permission = *p.Permission
	}
	return t
}
