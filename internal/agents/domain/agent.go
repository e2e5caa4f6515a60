// Package domain models enrolled agents, their check-ins and the catalog
// tasks operators issue to them.
package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/opsapi/internal/pagination"
)

var ErrInvalid = errors.New("invalid agent request")

var (
	ErrAgentIDRequired         = fmt.Errorf("%w: agent_uuid is required", ErrInvalid)
	ErrConfigurationIDRequired = fmt.Errorf("%w: agent_configuration_uuid is required", ErrInvalid)
	ErrTaskRequired            = fmt.Errorf("%w: task_uuid or task_name is required", ErrInvalid)
	ErrParametersNotObject     = fmt.Errorf("%w: parameters must be a JSON object", ErrInvalid)
)

type Agent struct {
	ID              string     `json:"agent_uuid"`
	ConfigurationID string     `json:"agent_configuration_uuid"`
	CreatedAt       time.Time  `json:"created_at"`
	LastSeen        *time.Time `json:"last_seen"`
	UninstallDate   *time.Time `json:"uninstall_date"`
}

func (a Agent) Validate() error {
	if a.ID == "" {
		return ErrAgentIDRequired
	}
	if a.ConfigurationID == "" {
		return ErrConfigurationIDRequired
	}
	return nil
}

// Uninstalled reports whether the agent was retired at or before now.
func (a Agent) Uninstalled(now time.Time) bool {
	return a.UninstallDate != nil && !a.UninstallDate.After(now)
}

// SeenAt moves LastSeen forward to at. Late check-ins never move it back.
func (a Agent) SeenAt(at time.Time) Agent {
	if a.LastSeen == nil || at.After(*a.LastSeen) {
		a.LastSeen = &at
	}
	return a
}

// IssuedTask is one entry of an agent's task history.
type IssuedTask struct {
	ID         string          `json:"task_history_uuid"`
	AgentID    string          `json:"agent_uuid"`
	TaskID     string          `json:"task_uuid"`
	Operator   string          `json:"operator"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	IssuedAt   time.Time       `json:"issued_at"`
}

func (t IssuedTask) Key() pagination.Cursor {
	return pagination.Cursor{Timestamp: t.IssuedAt, ID: t.ID}
}

// NormalizeParameters accepts an absent or null value as no parameters and
// otherwise requires a JSON object.
func NormalizeParameters(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, ErrParametersNotObject
	}
	return trimmed, nil
}
