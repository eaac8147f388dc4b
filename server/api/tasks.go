package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/avntro/mission-control/agent"
	"github.com/avntro/mission-control/board"
	"github.com/avntro/mission-control/task"
)

// --- Task handlers ---

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := task.Filter{}

	if s := q.Get("status"); s != "" {
		st := task.Status(s)
		filter.Status = &st
	}
	if a := q.Get("agent"); a != "" {
		filter.AssignedAgent = a
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			filter.Limit = n
		}
	}
	if o := q.Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil {
			filter.Offset = n
		}
	}

	tasks, err := h.Tasks.List(filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tasks))
}

func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request) {
	var n task.NewTask
	if err := decode(r, &n); err != nil {
		h.fail(w, r, err)
		return
	}
	t := n.Task()
	if _, err := h.Tasks.Create(t); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.Detail(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) updateTask(w http.ResponseWriter, r *http.Request) {
	var p task.Patch
	if err := decode(r, &p); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.Tasks.Update(r.PathValue("id"), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Tasks.Delete(r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) addComment(w http.ResponseWriter, r *http.Request) {
	var c task.Comment
	if err := decode(r, &c); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Tasks.AddComment(&c); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// --- Live tasks / board ---

func (h *Handlers) liveTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Live.LiveTasks(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tasks))
}

// board merges persisted and live tasks into lanes of display cards. A failed
// session scan degrades to the persisted tasks alone.
func (h *Handlers) board(w http.ResponseWriter, r *http.Request) {
	stored, err := h.Tasks.List(task.Filter{})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	persisted := make([]task.Task, 0, len(stored))
	for _, t := range stored {
		persisted = append(persisted, *t)
	}

	live, err := h.Live.LiveTasks(r.Context())
	if err != nil {
		h.logger().Warn("board: live scan failed", slog.Any("err", err))
		live = nil
	}
	agents, err := h.Agents.List()
	if err != nil {
		h.logger().Warn("board: roster unavailable", slog.Any("err", err))
		agents = []agent.Agent{}
	}

	exp := board.Expansion{}
	for _, s := range strings.Split(r.URL.Query().Get("expand"), ",") {
		if st := task.Status(strings.TrimSpace(s)); st.Valid() {
			exp[st] = true
		}
	}
	b := board.MergeBoard(persisted, live)
	writeJSON(w, http.StatusOK, boardView{
		Lanes: b.Cards(board.NewRoster(agents), h.now(), intParam(r, "cap", h.LaneCap), exp),
		Total: b.Len(),
	})
}
