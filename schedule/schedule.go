// Package schedule lists the cron jobs run by the agent roster together with
// their next run and the most recent run recorded in the activity feed.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/avntro/mission-control/activity"
	"github.com/avntro/mission-control/config"
)

// ErrNotFound is returned for an unknown job id.
var ErrNotFound = errors.New("schedule: job not found")

const (
	StatusActive  = "active"
	StatusInvalid = "invalid"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Job is a scheduled job as shown on the dashboard.
type Job struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Schedule      string     `json:"schedule"`
	ScheduleHuman string     `json:"schedule_human"`
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	Agent         string     `json:"agent"`
	Icon          string     `json:"icon"`
	NextRun       *time.Time `json:"next_run"`
	LastRun       *time.Time `json:"last_run"`
	LastSuccess   *bool      `json:"last_success,omitempty"`
}

// Run is a completed job run reported by an agent.
type Run struct {
	Success  bool     `json:"success"`
	Details  string   `json:"details"`
	Duration *float64 `json:"duration,omitempty" validate:"omitempty,gte=0"`
}

// Catalog answers questions about the configured jobs.
type Catalog struct {
	jobs []config.JobConfig
	log  activity.Log
	now  func() time.Time
	loc  *time.Location
}

// New creates a Catalog. Runs are looked up in, and recorded to, log.
func New(jobs []config.JobConfig, log activity.Log) *Catalog {
	return &Catalog{jobs: jobs, log: log, now: time.Now, loc: time.Local}
}

// NextRun computes the first activation of expr strictly after from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return sched.Next(from), nil
}

// List returns every job enriched with its next and last run. A job whose
// expression does not parse is listed with status "invalid".
func (c *Catalog) List() ([]Job, error) {
	now := c.now().In(c.loc)
	out := make([]Job, 0, len(c.jobs))
	for _, jc := range c.jobs {
		j, err := c.job(jc, now)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// Get returns one job.
func (c *Catalog) Get(id string) (Job, error) {
	jc, ok := c.lookup(id)
	if !ok {
		return Job{}, fmt.Errorf("job %q: %w", id, ErrNotFound)
	}
	return c.job(jc, c.now().In(c.loc))
}

func (c *Catalog) lookup(id string) (config.JobConfig, bool) {
	for _, jc := range c.jobs {
		if jc.ID == id {
			return jc, true
		}
	}
	return config.JobConfig{}, false
}

func (c *Catalog) job(jc config.JobConfig, now time.Time) (Job, error) {
	j := Job{
		ID:            jc.ID,
		Title:         jc.Title,
		Description:   jc.Description,
		Schedule:      jc.Schedule,
		ScheduleHuman: jc.ScheduleHuman,
		Type:          jc.Type,
		Status:        StatusActive,
		Agent:         jc.Agent,
		Icon:          jc.Icon,
	}
	if next, err := NextRun(jc.Schedule, now); err != nil {
		j.Status = StatusInvalid
	} else {
		next = next.UTC()
		j.NextRun = &next
	}
	if c.log == nil {
		return j, nil
	}
	runs, err := c.log.List(activity.Filter{Action: activity.ActionCronRun, TaskID: jc.ID, Limit: 1})
	if err != nil {
		return Job{}, fmt.Errorf("last run of %s: %w", jc.ID, err)
	}
	if len(runs) > 0 {
		last, ok := runs[0].CreatedAt, runs[0].Success
		j.LastRun = &last
		j.LastSuccess = &ok
	}
	return j, nil
}

// RecordRun appends a cron_run event for job id on behalf of its agent.
func (c *Catalog) RecordRun(id string, run Run) (activity.Event, error) {
	jc, ok := c.lookup(id)
	if !ok {
		return activity.Event{}, fmt.Errorf("job %q: %w", id, ErrNotFound)
	}
	details := run.Details
	if details == "" {
		details = jc.Title
	}
	e := activity.Event{
		Agent:    jc.Agent,
		Action:   activity.ActionCronRun,
		Details:  details,
		TaskID:   jc.ID,
		Success:  run.Success,
		Duration: run.Duration,
	}
	if err := c.log.Append(&e); err != nil {
		return activity.Event{}, fmt.Errorf("record run of %s: %w", id, err)
	}
	return e, nil
}
