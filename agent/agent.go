// Package agent defines the fixed agent roster, its persisted status, and the
// derived per-agent telemetry produced by the session scanner.
package agent

import (
	"errors"
	"time"

	"github.com/avntro/mission-control/config"
)

// ErrNotFound is returned when a roster name does not exist.
var ErrNotFound = errors.New("agent not found")

// Status represents the current state of an agent.
type Status string

const (
	StatusIdle  Status = "idle"
	StatusBusy  Status = "busy"
	StatusError Status = "error"
)

// Agent is one member of the roster.
type Agent struct {
	Name         string     `json:"name"`
	DisplayName  string     `json:"display_name"`
	Emoji        string     `json:"emoji"`
	Model        string     `json:"model"`
	Status       Status     `json:"status"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	CurrentTask  string     `json:"current_task,omitempty"`
}

// Update is a partial status update; nil fields are left unchanged. An empty
// CurrentTask clears it.
type Update struct {
	Status       *Status    `json:"status,omitempty" validate:"omitempty,oneof=idle busy error"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	CurrentTask  *string    `json:"current_task,omitempty"`
}

// Store persists the roster.
type Store interface {
	// Seed inserts the given agents when the roster is empty.
	Seed(agents []Agent) error

	// List returns the roster ordered by name.
	List() ([]Agent, error)

	// Get returns one agent.
	Get(name string) (*Agent, error)

	// Update applies u and returns the stored result.
	Update(name string, u Update) (*Agent, error)
}

// FromConfig converts configured roster entries into idle agents.
func FromConfig(cfgs []config.AgentConfig) []Agent {
	out := make([]Agent, 0, len(cfgs))
	for _, c := range cfgs {
		emoji := c.Emoji
		if emoji == "" {
			emoji = "🤖"
		}
		name := c.DisplayName
		if name == "" {
			name = c.Name
		}
		out = append(out, Agent{
			Name:        c.Name,
			DisplayName: name,
			Emoji:       emoji,
			Model:       c.Model,
			Status:      StatusIdle,
		})
	}
	return out
}

// Session is one scanned session of an agent.
type Session struct {
	Key       string    `json:"key"`
	Active    bool      `json:"active"`
	Tokens    int64     `json:"tokens"`
	Cost      float64   `json:"cost"`
	Model     string    `json:"model"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Stats is the live telemetry snapshot for one agent. It is derived on every
// scan and never persisted.
type Stats struct {
	Active            bool      `json:"active"`
	MainSessionTokens int64     `json:"main_session_tokens"`
	ContextLimit      int64     `json:"context_limit"`
	ContextPct        int       `json:"context_pct"`
	TotalCost         float64   `json:"total_cost"`
	ActiveSessions    int       `json:"active_sessions"`
	SubagentCount     int       `json:"subagent_count"`
	ActiveSubagents   int       `json:"active_subagents"`
	Sessions          []Session `json:"sessions"`
}
