package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dejobratic/opsapi/internal/pagination"
)

const MaxNameLength = 255

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid engagement")

var (
	ErrNameRequired   = fmt.Errorf("%w: engagement_name is required", ErrInvalid)
	ErrNameTooLong    = fmt.Errorf("%w: engagement_name must be at most 255 characters", ErrInvalid)
	ErrStartRequired  = fmt.Errorf("%w: start_ts is required", ErrInvalid)
	ErrEndBeforeStart = fmt.Errorf("%w: end_ts must not be before start_ts", ErrInvalid)
)

// Engagement is a bounded operation window that other records hang off.
type Engagement struct {
	ID        string     `json:"engagement_uuid"`
	Name      string     `json:"engagement_name"`
	StartTS   time.Time  `json:"start_ts"`
	EndTS     *time.Time `json:"end_ts"`
	CreatedAt time.Time  `json:"created_at"`
}

// Validate ensures the engagement adheres to business constraints.
func (e Engagement) Validate() error {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return ErrNameRequired
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	if e.StartTS.IsZero() {
		return ErrStartRequired
	}
	if e.EndTS != nil && e.EndTS.Before(e.StartTS) {
		return ErrEndBeforeStart
	}
	return nil
}

// IsActive reports whether the engagement has not ended at now.
func (e Engagement) IsActive(now time.Time) bool {
	return e.EndTS == nil || e.EndTS.After(now)
}

// Key is the keyset position of the engagement.
func (e Engagement) Key() pagination.Cursor {
	return pagination.Cursor{Timestamp: e.CreatedAt, ID: e.ID}
}

// Patch holds optional field updates. Nil fields keep their value.
type Patch struct {
	Name    *string
	StartTS *time.Time
	EndTS   *time.Time
}

func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.StartTS == nil && p.EndTS == nil
}

// Apply returns e with the patch applied.
func (p Patch) Apply(e Engagement) Engagement {
	if p.Name != nil {
		e.Name = strings.TrimSpace(*p.Name)
	}
	if p.StartTS != nil {
		e.StartTS = Timestamp(*p.StartTS)
	}
	if p.EndTS != nil {
		end := Timestamp(*p.EndTS)
		e.EndTS = &end
	}
	return e
}

// Timestamp normalizes t to the precision Postgres stores so values read
// back compare equal to the ones written.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
