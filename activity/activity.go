// Package activity defines the append-only activity feed and its persistence.
package activity

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Action identifies what happened.
type Action string

const (
	ActionTaskCreated       Action = "task_created"
	ActionTaskStarted       Action = "task_started"
	ActionTaskCompleted     Action = "task_completed"
	ActionTaskError         Action = "task_error"
	ActionStatusChange      Action = "status_change"
	ActionCommentAdded      Action = "comment_added"
	ActionCronRun           Action = "cron_run"
	ActionSubagentSpawned   Action = "subagent_spawned"
	ActionSubagentCompleted Action = "subagent_completed"
)

// Known reports whether a is one of the enumerated actions.
func (a Action) Known() bool {
	switch a {
	case ActionTaskCreated, ActionTaskStarted, ActionTaskCompleted, ActionTaskError,
		ActionStatusChange, ActionCommentAdded, ActionCronRun,
		ActionSubagentSpawned, ActionSubagentCompleted:
		return true
	}
	return false
}

var titleCaser = cases.Title(language.English)

// Label renders an action for display, e.g. "task_created" → "Task Created".
func (a Action) Label() string {
	return titleCaser.String(strings.ReplaceAll(string(a), "_", " "))
}

// Event is one entry of the feed. Events are immutable once appended.
type Event struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	Action    Action    `json:"action"`
	Details   string    `json:"details"`
	TaskID    string    `json:"task_id,omitempty"`
	Success   bool      `json:"success"`
	Duration  *float64  `json:"duration,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Detail is one "key: value" pair from structured event details.
type Detail struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ParseDetails splits details of the form "key: value | key: value" into
// ordered pairs. Free text (any segment without a colon) yields nil.
func ParseDetails(details string) []Detail {
	if !strings.Contains(details, ":") {
		return nil
	}
	segments := strings.Split(details, "|")
	out := make([]Detail, 0, len(segments))
	for _, seg := range segments {
		k, v, ok := strings.Cut(seg, ":")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil
		}
		out = append(out, Detail{Key: k, Value: strings.TrimSpace(v)})
	}
	return out
}

// Filter controls which events List returns.
type Filter struct {
	Agent  string `json:"agent,omitempty"`
	Action Action `json:"action,omitempty"`
	TaskID string `json:"task_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// DefaultLimit is the page size used when a Filter has no limit.
const DefaultLimit = 50

// Log persists and retrieves feed events.
type Log interface {
	// Append stores e, assigning ID and CreatedAt when empty.
	Append(e *Event) error

	// List returns matching events, most recent first.
	List(filter Filter) ([]Event, error)

	// ForTask returns a task's history, oldest first.
	ForTask(taskID string) ([]Event, error)

	// DeleteForTask drops a deleted task's history.
	DeleteForTask(taskID string) error
}
