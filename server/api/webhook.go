package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/avntro/mission-control/activity"
	"github.com/avntro/mission-control/agent"
	"github.com/avntro/mission-control/task"
)

// RunEvent is an agent-run lifecycle notification posted by the OpenClaw
// gateway hook.
type RunEvent struct {
	Action   string   `json:"action" validate:"required,oneof=start end error progress"`
	Agent    string   `json:"agent" validate:"required"`
	RunID    string   `json:"runId"`
	Source   string   `json:"source"`
	Prompt   string   `json:"prompt"`
	Response string   `json:"response"`
	Error    string   `json:"error"`
	Duration *float64 `json:"duration" validate:"omitempty,gte=0"`
}

// TaskID is the task a run is tracked as: the first 8 characters of its run
// id.
func (e RunEvent) TaskID() string {
	return truncate(e.RunID, 8)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (h *Handlers) webhook(w http.ResponseWriter, r *http.Request) {
	var ev RunEvent
	if err := decode(r, &ev); err != nil {
		h.fail(w, r, err)
		return
	}
	var err error
	switch ev.Action {
	case "start":
		err = h.runStarted(ev)
	case "end":
		err = h.runEnded(ev)
	case "error":
		err = h.runFailed(ev)
	case "progress":
		err = h.runProgress(ev)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// touchAgent applies u to the reporting agent. Runs from agents outside the
// roster are still recorded.
func (h *Handlers) touchAgent(name string, u agent.Update) {
	if _, err := h.Agents.Update(name, u); err != nil {
		h.logger().Warn("webhook: agent update skipped",
			slog.String("agent", name), slog.Any("err", err))
	}
}

// runStarted tracks the run as an in_progress task, created on first sight.
func (h *Handlers) runStarted(ev RunEvent) error {
	id := ev.TaskID()
	if id == "" {
		id = task.ShortID()
	}
	details := ""
	if _, err := h.Tasks.Get(id); errors.Is(err, task.ErrNotFound) {
		title := truncate(ev.Prompt, 100)
		if title == "" {
			title = "Agent run " + id
		}
		if ev.Source != "" {
			title = "[" + ev.Source + "] " + title
		}
		t := &task.Task{
			ID:            id,
			Title:         title,
			Description:   ev.Prompt,
			AssignedAgent: ev.Agent,
			Priority:      task.PriorityMedium,
			Status:        task.StatusInProgress,
			SkipHistory:   true,
		}
		if _, err := h.Tasks.Create(t); err != nil {
			return err
		}
		details = title
	} else if err != nil {
		return err
	}

	now := h.now()
	busy := agent.StatusBusy
	h.touchAgent(ev.Agent, agent.Update{Status: &busy, LastActivity: &now, CurrentTask: &id})
	return h.Activity.Append(&activity.Event{
		Agent:   ev.Agent,
		Action:  activity.ActionTaskStarted,
		Details: details,
		TaskID:  id,
		Success: true,
	})
}

// moveRun sets the lane of a tracked run without a separate status_change
// entry; the lifecycle event itself is the record.
func (h *Handlers) moveRun(id string, status task.Status, duration *float64) error {
	if id == "" {
		return nil
	}
	_, err := h.Tasks.Update(id, task.Patch{Status: &status, Duration: duration, SkipHistory: true})
	if errors.Is(err, task.ErrNotFound) {
		h.logger().Warn("webhook: run has no task", slog.String("task_id", id))
		return nil
	}
	return err
}

func (h *Handlers) runEnded(ev RunEvent) error {
	id := ev.TaskID()
	if err := h.moveRun(id, task.StatusDone, ev.Duration); err != nil {
		return err
	}
	now := h.now()
	idle, none := agent.StatusIdle, ""
	h.touchAgent(ev.Agent, agent.Update{Status: &idle, LastActivity: &now, CurrentTask: &none})
	return h.Activity.Append(&activity.Event{
		Agent:    ev.Agent,
		Action:   activity.ActionTaskCompleted,
		Details:  truncate(ev.Response, 100),
		TaskID:   id,
		Success:  true,
		Duration: ev.Duration,
	})
}

func (h *Handlers) runFailed(ev RunEvent) error {
	id := ev.TaskID()
	if err := h.moveRun(id, task.StatusReview, nil); err != nil {
		return err
	}
	now := h.now()
	failed := agent.StatusError
	h.touchAgent(ev.Agent, agent.Update{Status: &failed, LastActivity: &now})
	if err := h.Activity.Append(&activity.Event{
		Agent:   ev.Agent,
		Action:  activity.ActionTaskError,
		Details: truncate(ev.Error, 200),
		TaskID:  id,
		Success: false,
	}); err != nil {
		return err
	}
	if id == "" || ev.Error == "" {
		return nil
	}
	return h.comment(id, ev.Agent, ev.Error, "error")
}

func (h *Handlers) runProgress(ev RunEvent) error {
	h.touchAgent(ev.Agent, agent.Touch(h.now()))
	id := ev.TaskID()
	if id == "" || ev.Response == "" {
		return nil
	}
	return h.comment(id, ev.Agent, truncate(ev.Response, 500), "log")
}

// comment attaches a run note to its task, if the task is tracked.
func (h *Handlers) comment(taskID, agentName, content, kind string) error {
	err := h.Tasks.AddComment(&task.Comment{
		TaskID: taskID, Agent: agentName, Content: content, Type: kind, SkipHistory: true,
	})
	if errors.Is(err, task.ErrNotFound) {
		return nil
	}
	return err
}
