package task

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid wraps every validation failure so handlers can map it to 400.
var ErrInvalid = errors.New("invalid task")

var validate = validator.New()

// NewTask is the body accepted when creating a task.
type NewTask struct {
	Title         string   `json:"title" validate:"required"`
	Description   string   `json:"description"`
	AssignedAgent string   `json:"assigned_agent"`
	Priority      Priority `json:"priority" validate:"omitempty,oneof=critical high medium low"`
	Status        Status   `json:"status" validate:"omitempty,oneof=todo in_progress review done"`
	Model         string   `json:"model"`
	Cost          float64  `json:"cost" validate:"gte=0"`
	Tokens        int64    `json:"tokens" validate:"gte=0"`
}

// Task converts the request into a task, applying defaults.
func (n NewTask) Task() *Task {
	t := &Task{
		Title:         n.Title,
		Description:   n.Description,
		AssignedAgent: n.AssignedAgent,
		Priority:      n.Priority,
		Status:        n.Status,
		Model:         n.Model,
		Cost:          n.Cost,
		Tokens:        n.Tokens,
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	return t
}

// Validate checks any struct carrying validate tags in this package.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q", strings.ToLower(e.Field()), e.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}
