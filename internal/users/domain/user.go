// Package domain models platform user accounts and their engagement
// memberships.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dejobratic/opsapi/internal/auth"
)

var ErrInvalid = errors.New("invalid user")

var (
	ErrUsernameLength     = fmt.Errorf("%w: username must be 3 to 128 characters", ErrInvalid)
	ErrPasswordHashLength = fmt.Errorf("%w: password_hash must be 32 to 512 characters", ErrInvalid)
	ErrUnknownRole        = fmt.Errorf("%w: global_role must be Analyst, Operator or Admin", ErrInvalid)
	ErrUnknownStatus      = fmt.Errorf("%w: account_status must be enabled or disabled", ErrInvalid)
)

type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
)

func (s Status) Valid() bool {
	return s == StatusEnabled || s == StatusDisabled
}

// User is an account. The password hash is computed by the caller and is
// never rendered.
type User struct {
	ID            string    `json:"user_uuid"`
	Username      string    `json:"username"`
	PasswordHash  string    `json:"-"`
	AccountStatus Status    `json:"account_status"`
	GlobalRole    auth.Role `json:"global_role"`
	CreatedAt     time.Time `json:"created_at"`
}

func (u User) Validate() error {
	if n := utf8.RuneCountInString(strings.TrimSpace(u.Username)); n < 3 || n > 128 {
		return ErrUsernameLength
	}
	if n := len(u.PasswordHash); n < 32 || n > 512 {
		return ErrPasswordHashLength
	}
	if !u.AccountStatus.Valid() {
		return ErrUnknownStatus
	}
	if !u.GlobalRole.Valid() {
		return ErrUnknownRole
	}
	return nil
}

// ParseRole resolves a global role name. Empty defaults to Analyst.
func ParseRole(value string) (auth.Role, error) {
	if strings.TrimSpace(value) == "" {
		return auth.RoleAnalyst, nil
	}
	role, err := auth.ParseRole(value)
	if err != nil {
		return "", ErrUnknownRole
	}
	return role, nil
}
