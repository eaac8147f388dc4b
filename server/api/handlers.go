// Package api implements the Mission Control REST handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"

	"github.com/avntro/mission-control/activity"
	"github.com/avntro/mission-control/agent"
	"github.com/avntro/mission-control/board"
	"github.com/avntro/mission-control/report"
	"github.com/avntro/mission-control/schedule"
	"github.com/avntro/mission-control/standup"
	"github.com/avntro/mission-control/task"
	"github.com/avntro/mission-control/workspace"
)

// LiveSource produces live tasks and agent telemetry from session files.
type LiveSource interface {
	LiveTasks(ctx context.Context) ([]task.Task, error)
	AgentStats(ctx context.Context) (map[string]agent.Stats, error)
}

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	Tasks      task.Store
	Agents     agent.Store
	Activity   activity.Log
	Live       LiveSource
	Workspaces *workspace.Manager
	Schedule   *schedule.Catalog
	Standups   *standup.Store
	Reports    *report.Store
	Gateway    *Gateway
	Logger     *slog.Logger
	Version    string

	// GPUStatsFile is read from FS on every /api/gpu request.
	GPUStatsFile string
	FS           afero.Fs

	LaneCap int
	Now     func() time.Time
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("POST /api/tasks", h.createTask)
	mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	mux.HandleFunc("PATCH /api/tasks/{id}", h.updateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", h.deleteTask)
	mux.HandleFunc("POST /api/comments", h.addComment)
	mux.HandleFunc("GET /api/live-tasks", h.liveTasks)
	mux.HandleFunc("GET /api/board", h.board)

	mux.HandleFunc("GET /api/agents", h.listAgents)
	mux.HandleFunc("GET /api/agents/{name}", h.getAgent)
	mux.HandleFunc("PATCH /api/agents/{name}", h.updateAgent)
	mux.HandleFunc("GET /api/agent-stats", h.agentStats)

	mux.HandleFunc("GET /api/activity", h.listActivity)
	mux.HandleFunc("GET /api/overnight-log", h.overnightLog)

	mux.HandleFunc("GET /api/scheduled-tasks", h.listJobs)
	mux.HandleFunc("POST /api/scheduled-tasks/{id}/runs", h.recordRun)

	mux.HandleFunc("GET /api/workspaces", h.listWorkspaces)
	mux.HandleFunc("GET /api/workspaces/changes", h.workspaceChanges)
	mux.HandleFunc("GET /api/workspaces/{agent}/{file}", h.readWorkspaceFile)
	mux.HandleFunc("PUT /api/workspaces/{agent}/{file}", h.saveWorkspaceFile)

	mux.HandleFunc("GET /api/standups", h.listStandups)
	mux.HandleFunc("POST /api/standups", h.createStandup)
	mux.HandleFunc("GET /api/standups/{id}", h.getStandup)
	mux.HandleFunc("POST /api/standups/{id}/messages", h.addStandupMessage)
	mux.HandleFunc("PATCH /api/standup-messages/{id}", h.updateStandupMessage)

	mux.HandleFunc("GET /api/reports", h.listReports)
	mux.HandleFunc("POST /api/reports", h.createReport)
	mux.HandleFunc("GET /api/reports/tags", h.reportTags)
	mux.HandleFunc("GET /api/reports/authors", h.reportAuthors)
	mux.HandleFunc("GET /api/reports/{id}", h.getReport)
	mux.HandleFunc("PUT /api/reports/{id}", h.updateReport)
	mux.HandleFunc("DELETE /api/reports/{id}", h.deleteReport)
	mux.HandleFunc("GET /api/reports/{id}/export", h.exportReport)

	mux.HandleFunc("POST /api/webhook/openclaw", h.webhook)
	mux.HandleFunc("GET /api/gpu", h.gpu)
	mux.HandleFunc("GET /api/gateway/sessions", h.gatewaySessions)
	mux.HandleFunc("GET /api/gateway/agents", h.gatewayAgents)

	mux.HandleFunc("GET /api/status", h.status)
	mux.HandleFunc("GET /api/version", h.version)
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var errBadRequest = errors.New("bad request")

// fail maps a store error onto a status code. Unexpected errors are logged
// and reported as 500.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, task.ErrNotFound), errors.Is(err, agent.ErrNotFound),
		errors.Is(err, standup.ErrNotFound), errors.Is(err, report.ErrNotFound),
		errors.Is(err, workspace.ErrNotFound), errors.Is(err, schedule.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, workspace.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, errBadRequest), errors.Is(err, task.ErrInvalid), errors.Is(err, task.ErrLiveTask):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger().Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

var validate = validator.New()

// decode reads a JSON body into v and checks its validate tags.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("%w: %s fails %q", errBadRequest, e.Field(), e.Tag())
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// intParam parses a positive integer query parameter, returning def when it
// is absent or malformed.
func intParam(r *http.Request, name string, def int) int {
	if s := r.URL.Query().Get(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// nonNil keeps empty collections encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// --- Status / version ---

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.Version,
	})
}

func (h *Handlers) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
	})
}

// boardView mirrors poller.BoardView on the wire.
type boardView struct {
	Lanes []board.LaneCards `json:"lanes"`
	Total int               `json:"total"`
}
