package board

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/avntro/mission-control/agent"
	"github.com/avntro/mission-control/task"
)

// Data is the most recent successfully fetched value of every polled
// section.
type Data struct {
	Tasks  []task.Task
	Live   []task.Task
	Agents []agent.Agent
	Stats  map[string]agent.Stats
}

// FetchResult is the outcome of one poll cycle. A section whose error is
// non-nil was not fetched.
type FetchResult struct {
	Tasks     []task.Task
	TasksErr  error
	Live      []task.Task
	LiveErr   error
	Agents    []agent.Agent
	AgentsErr error
	Stats     map[string]agent.Stats
	StatsErr  error
}

// Merge overwrites only the sections that fetched successfully, so a failed
// fetch leaves the last good value in place.
func (d Data) Merge(r FetchResult) Data {
	if r.TasksErr == nil {
		d.Tasks = r.Tasks
	}
	if r.LiveErr == nil {
		d.Live = r.Live
	}
	if r.AgentsErr == nil {
		d.Agents = r.Agents
	}
	if r.StatsErr == nil {
		d.Stats = r.Stats
	}
	return d
}

// Section names.
const (
	SectionAgents = "agents"
	SectionStats  = "stats"
	SectionFeed   = "feed"
)

// LaneSection names the section holding lane s.
func LaneSection(s task.Status) string {
	return "lane:" + string(s)
}

// Field is one named display value of a row.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Row is one keyed entity in a section.
type Row struct {
	Key    string  `json:"key"`
	Fields []Field `json:"fields"`
}

// Get returns the value of field name.
func (r Row) Get(name string) string {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Section is an ordered list of rows plus an optional footer such as
// "+3 more".
type Section struct {
	Name   string `json:"name"`
	Rows   []Row  `json:"rows"`
	Footer string `json:"footer,omitempty"`
}

// Keys returns the row identities in order.
func (s Section) Keys() []string {
	keys := make([]string, len(s.Rows))
	for i, r := range s.Rows {
		keys[i] = r.Key
	}
	return keys
}

// Snapshot is the rendered state of the dashboard.
type Snapshot struct {
	Sections []Section `json:"sections"`
}

// Section returns the named section.
func (s Snapshot) Section(name string) (Section, bool) {
	for _, sec := range s.Sections {
		if sec.Name == name {
			return sec, true
		}
	}
	return Section{}, false
}

// View holds the presentation options of Reconcile.
type View struct {
	LaneCap   int
	Expansion Expansion
}

// Reconcile derives the snapshot to render from d at now.
func Reconcile(d Data, now time.Time, v View) Snapshot {
	roster := NewRoster(d.Agents)
	b := MergeBoard(d.Tasks, d.Live)

	var snap Snapshot
	for _, lc := range b.Cards(roster, now, v.LaneCap, v.Expansion) {
		sec := Section{Name: LaneSection(lc.Status), Rows: make([]Row, 0, len(lc.Cards))}
		for _, c := range lc.Cards {
			sec.Rows = append(sec.Rows, cardRow(c))
		}
		if lc.Hidden > 0 {
			sec.Footer = fmt.Sprintf("+%d more", lc.Hidden)
		}
		snap.Sections = append(snap.Sections, sec)
	}
	snap.Sections = append(snap.Sections, agentSection(d.Agents, now), statsSection(d.Agents, d.Stats))
	return snap
}

func cardRow(c Card) Row {
	live := ""
	if c.IsLive {
		live = "live"
	}
	return Row{Key: c.ID, Fields: []Field{
		{"title", c.Title},
		{"agent", c.Agent},
		{"priority", c.Priority},
		{"live", live},
		{"source", c.Source},
		{"model", c.Model},
		{"duration", c.Duration},
		{"cost", c.Cost},
		{"tokens", c.Tokens},
		{"updated", c.Updated},
		{"completed", c.Completed},
	}}
}

func agentSection(agents []agent.Agent, now time.Time) Section {
	sec := Section{Name: SectionAgents, Rows: make([]Row, 0, len(agents))}
	for _, a := range agents {
		last := ""
		if a.LastActivity != nil {
			last = TimeAgo(*a.LastActivity, now)
		}
		sec.Rows = append(sec.Rows, Row{Key: a.Name, Fields: []Field{
			{"label", AgentLabel(a, true)},
			{"status", string(a.Status)},
			{"current_task", a.CurrentTask},
			{"last_activity", last},
		}})
	}
	return sec
}

// statsSection lists telemetry in roster order, followed by any agents the
// scanner reported that the roster does not know, sorted by name.
func statsSection(agents []agent.Agent, stats map[string]agent.Stats) Section {
	sec := Section{Name: SectionStats}
	seen := make(map[string]bool, len(agents))
	names := make([]string, 0, len(stats))
	for _, a := range agents {
		if _, ok := stats[a.Name]; ok {
			names = append(names, a.Name)
			seen[a.Name] = true
		}
	}
	extra := []string{}
	for name := range stats {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	names = append(names, extra...)

	sec.Rows = make([]Row, 0, len(names))
	for _, name := range names {
		st := stats[name]
		pct := st.ContextPct
		if pct == 0 && st.ContextLimit > 0 {
			pct = ContextPercent(st.MainSessionTokens, st.ContextLimit)
		}
		active := "idle"
		if st.Active {
			active = "active"
		}
		sec.Rows = append(sec.Rows, Row{Key: name, Fields: []Field{
			{"active", active},
			{"tokens", FormatTokens(st.MainSessionTokens)},
			{"cost", FormatCost(st.TotalCost)},
			{"context_pct", strconv.Itoa(pct) + "%"},
			{"bar_width", strconv.Itoa(BarWidth(pct))},
			{"band", string(BandFor(pct))},
			{"sessions", fmt.Sprintf("%d/%d", st.ActiveSessions, len(st.Sessions))},
			{"subagents", fmt.Sprintf("%d/%d", st.ActiveSubagents, st.SubagentCount)},
		}})
	}
	return sec
}
