// Package task defines the task model and persistence for board cards.
package task

import (
	"errors"
	"time"

	"github.com/avntro/mission-control/activity"
)

// ErrNotFound is returned when a task ID does not exist.
var ErrNotFound = errors.New("task not found")

// ErrLiveTask is returned when a caller tries to persist a live task.
var ErrLiveTask = errors.New("live tasks cannot be persisted")

// Status is the board lane a task sits in.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
)

// Lanes lists the board lanes in display order.
var Lanes = []Status{StatusTodo, StatusInProgress, StatusReview, StatusDone}

// Lane defaults for records whose status is missing or unrecognised. They
// differ by source: an untracked live task is assumed to still be running.
const (
	DefaultPersistedLane = StatusTodo
	DefaultLiveLane      = StatusInProgress
)

// Valid reports whether s names one of the four lanes.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusReview, StatusDone:
		return true
	}
	return false
}

// LaneFor resolves the lane for a record from the given source.
func (s Status) LaneFor(isLive bool) Status {
	if s.Valid() {
		return s
	}
	if isLive {
		return DefaultLiveLane
	}
	return DefaultPersistedLane
}

// Priority orders tasks within list results.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank maps a priority onto its sort position; unknown values sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// Source tags where a live task came from.
type Source string

const (
	SourceInteractive Source = "interactive"
	SourceCron        Source = "cron"
	SourceSubagent    Source = "subagent"
)

// Task is a board card, either persisted or live.
type Task struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Status        Status     `json:"status"`
	Priority      Priority   `json:"priority"`
	AssignedAgent string     `json:"assigned_agent"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Duration      *float64   `json:"duration,omitempty"` // seconds

	// Telemetry from the producing agent run; zero for manual tasks.
	Tokens int64   `json:"tokens,omitempty"`
	Cost   float64 `json:"cost,omitempty"`
	Model  string  `json:"model,omitempty"`

	IsLive     bool   `json:"is_live"`
	Source     Source `json:"source,omitempty"`
	SessionKey string `json:"session_key,omitempty"`

	// Detail view only.
	Comments []Comment         `json:"comments,omitempty"`
	History  []activity.Event `json:"history,omitempty"`

	// SkipHistory suppresses the task_created event on Create. Run-lifecycle
	// ingestion records its own task_started instead.
	SkipHistory bool `json:"-"`
}

// CompletedOrFallback returns CompletedAt, falling back to UpdatedAt and then
// CreatedAt when absent.
func (t *Task) CompletedOrFallback() time.Time {
	if t.CompletedAt != nil && !t.CompletedAt.IsZero() {
		return *t.CompletedAt
	}
	if !t.UpdatedAt.IsZero() {
		return t.UpdatedAt
	}
	return t.CreatedAt
}

// Comment is a note appended to a task by an agent or a person.
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id" validate:"required"`
	Agent     string    `json:"agent"`
	Content   string    `json:"content"`
	Type      string    `json:"type" validate:"omitempty,oneof=comment error log"`
	CreatedAt time.Time `json:"created_at"`

	// SkipHistory suppresses the comment_added event; set for run notes.
	SkipHistory bool `json:"-"`
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Title         *string   `json:"title,omitempty" validate:"omitempty,min=1"`
	Description   *string   `json:"description,omitempty"`
	AssignedAgent *string   `json:"assigned_agent,omitempty"`
	Priority      *Priority `json:"priority,omitempty" validate:"omitempty,oneof=critical high medium low"`
	Status        *Status   `json:"status,omitempty" validate:"omitempty,oneof=todo in_progress review done"`
	Tokens        *int64    `json:"tokens,omitempty" validate:"omitempty,gte=0"`
	Cost          *float64  `json:"cost,omitempty" validate:"omitempty,gte=0"`
	Model         *string   `json:"model,omitempty"`

	// Set by run-lifecycle ingestion, not by API clients.
	Duration    *float64 `json:"-"`
	SkipHistory bool     `json:"-"`
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.AssignedAgent == nil &&
		p.Priority == nil && p.Status == nil && p.Tokens == nil && p.Cost == nil &&
		p.Model == nil && p.Duration == nil
}

// Store persists and retrieves tasks.
type Store interface {
	// Create persists a new task and returns its ID. A preset ID is kept.
	Create(t *Task) (string, error)

	// Get retrieves a task by ID without its child collections.
	Get(id string) (*Task, error)

	// Detail retrieves a task with comments and history.
	Detail(id string) (*Task, error)

	// Update applies a partial update and returns the stored result.
	Update(id string, p Patch) (*Task, error)

	// List returns tasks matching the given filter.
	List(filter Filter) ([]*Task, error)

	// Delete removes a task and its comments and history.
	Delete(id string) error

	// AddComment appends a comment to a task.
	AddComment(c *Comment) error
}

// Filter controls which tasks are returned by List.
type Filter struct {
	Status        *Status `json:"status,omitempty"`
	AssignedAgent string  `json:"assigned_agent,omitempty"`
	Limit         int     `json:"limit,omitempty"`
	Offset        int     `json:"offset,omitempty"`
}
