package api

import (
	"net/http"
	"time"

	"github.com/avntro/mission-control/activity"
	"github.com/avntro/mission-control/agent"
)

// --- Agent handlers ---

func (h *Handlers) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Agents.List()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(agents))
}

func (h *Handlers) getAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.Agents.Get(r.PathValue("name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handlers) updateAgent(w http.ResponseWriter, r *http.Request) {
	var u agent.Update
	if err := decode(r, &u); err != nil {
		h.fail(w, r, err)
		return
	}
	a, err := h.Agents.Update(r.PathValue("name"), u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handlers) agentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Live.AgentStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if stats == nil {
		stats = map[string]agent.Stats{}
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- Activity ---

func (h *Handlers) listActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	events, err := h.Activity.List(activity.Filter{
		Agent:  q.Get("agent"),
		Action: activity.Action(q.Get("action")),
		Limit:  intParam(r, "limit", activity.DefaultLimit),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(events))
}

// LogEntry is one card of the overnight log.
type LogEntry struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Agent       string    `json:"agent"`
	Tag         string    `json:"tag"`
	Time        time.Time `json:"time"`
	Success     bool      `json:"success"`
}

const overnightLimit = 20

// overnightLog renders recent activity as log cards. An empty feed shows two
// placeholder entries so the panel is never blank.
func (h *Handlers) overnightLog(w http.ResponseWriter, r *http.Request) {
	events, err := h.Activity.List(activity.Filter{Limit: overnightLimit})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(events) == 0 {
		now := h.now()
		writeJSON(w, http.StatusOK, []LogEntry{
			{
				ID: "1", Title: "System Health Check ✅",
				Description: "All services running normally. No issues detected.",
				Agent:       "it-support", Tag: "health_check", Time: now, Success: true,
			},
			{
				ID: "2", Title: "Dashboard Update 🔧",
				Description: "Mission Control dashboard is live.",
				Agent:       "dev", Tag: "deployment", Time: now, Success: true,
			},
		})
		return
	}
	out := make([]LogEntry, 0, len(events))
	for _, e := range events {
		desc := e.Details
		if desc == "" {
			desc = "No details"
		}
		out = append(out, LogEntry{
			ID:          e.ID,
			Title:       e.Action.Label(),
			Description: desc,
			Agent:       e.Agent,
			Tag:         string(e.Action),
			Time:        e.CreatedAt,
			Success:     e.Success,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
