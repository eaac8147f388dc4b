package api

import (
	"fmt"
	"net/http"

	"github.com/avntro/mission-control/report"
	"github.com/avntro/mission-control/schedule"
	"github.com/avntro/mission-control/standup"
)

// --- Scheduled jobs ---

func (h *Handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.Schedule.List()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(jobs))
}

func (h *Handlers) recordRun(w http.ResponseWriter, r *http.Request) {
	var run schedule.Run
	if err := decode(r, &run); err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.Schedule.RecordRun(r.PathValue("id"), run)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// --- Standups ---

func (h *Handlers) listStandups(w http.ResponseWriter, r *http.Request) {
	list, err := h.Standups.List()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (h *Handlers) createStandup(w http.ResponseWriter, r *http.Request) {
	var st standup.Standup
	if err := decode(r, &st); err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.Standups.Create(&st); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (h *Handlers) getStandup(w http.ResponseWriter, r *http.Request) {
	st, err := h.Standups.Get(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handlers) addStandupMessage(w http.ResponseWriter, r *http.Request) {
	var m standup.Message
	if err := decode(r, &m); err != nil {
		h.fail(w, r, err)
		return
	}
	m.StandupID = r.PathValue("id")
	if _, err := h.Standups.AddMessage(&m); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handlers) updateStandupMessage(w http.ResponseWriter, r *http.Request) {
	var u standup.ActionUpdate
	if err := decode(r, &u); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.Standups.UpdateMessage(r.PathValue("id"), u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// --- Reports ---

func (h *Handlers) listReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.Reports.List(report.Filter{Tag: q.Get("tag"), Author: q.Get("author")})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (h *Handlers) createReport(w http.ResponseWriter, r *http.Request) {
	var n report.NewReport
	if err := decode(r, &n); err != nil {
		h.fail(w, r, err)
		return
	}
	rep := n.Report()
	if _, err := h.Reports.Create(rep); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

func (h *Handlers) reportTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.Reports.Tags()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tags))
}

func (h *Handlers) reportAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.Reports.Authors()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(authors))
}

func (h *Handlers) getReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Reports.Get(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handlers) updateReport(w http.ResponseWriter, r *http.Request) {
	var p report.Patch
	if err := decode(r, &p); err != nil {
		h.fail(w, r, err)
		return
	}
	rep, err := h.Reports.Update(r.PathValue("id"), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handlers) deleteReport(w http.ResponseWriter, r *http.Request) {
	if err := h.Reports.Delete(r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) exportReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Reports.Get(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = report.FormatMarkdown
	}
	if format != report.FormatMarkdown && format != report.FormatHTML {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
		return
	}
	body, contentType, err := report.Export(rep, format)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rep.ID+"."+format))
	_, _ = w.Write(body)
}
