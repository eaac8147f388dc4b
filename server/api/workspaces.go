package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

func (h *Handlers) listWorkspaces(w http.ResponseWriter, r *http.Request) {
	list, err := h.Workspaces.List()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (h *Handlers) readWorkspaceFile(w http.ResponseWriter, r *http.Request) {
	render := r.URL.Query().Get("render") == "html"
	c, err := h.Workspaces.Read(r.PathValue("agent"), r.PathValue("file"), render)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type saveBody struct {
	Content *string `json:"content" validate:"required"`
}

func (h *Handlers) saveWorkspaceFile(w http.ResponseWriter, r *http.Request) {
	var body saveBody
	if err := decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := h.Workspaces.Save(r.PathValue("agent"), r.PathValue("file"), *body.Content)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *Handlers) workspaceChanges(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	changes, err := h.Workspaces.ChangedSince(since)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(changes))
}

// parseSince accepts an RFC 3339 timestamp or epoch milliseconds. Empty means
// the beginning of time.
func parseSince(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: since must be RFC 3339 or epoch milliseconds", errBadRequest)
	}
	return t, nil
}
