package board

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/avntro/mission-control/agent"
	"github.com/avntro/mission-control/task"
)

// ComputeDuration returns the seconds to display for t. A running task counts
// up from CreatedAt and never goes negative; anything else shows its stored
// duration when positive. ok is false when nothing should be shown.
func ComputeDuration(t task.Task, now time.Time) (secs float64, ok bool) {
	if t.Status == task.StatusInProgress && !t.CreatedAt.IsZero() {
		return math.Max(0, now.Sub(t.CreatedAt).Seconds()), true
	}
	if t.Duration != nil && *t.Duration > 0 {
		return *t.Duration, true
	}
	return 0, false
}

// ContextPercent is used/limit as a rounded percentage. It is not clamped, so
// overflow past 100 stays visible. A non-positive limit yields 0.
func ContextPercent(used, limit int64) int {
	if limit <= 0 || used <= 0 {
		return 0
	}
	return int(math.Round(float64(used) / float64(limit) * 100))
}

// BarWidth clamps a percentage to the drawable range.
func BarWidth(pct int) int {
	return min(max(pct, 0), 100)
}

// Band is the colour class of a context bar.
type Band string

const (
	BandGreen  Band = "green"
	BandYellow Band = "yellow"
	BandRed    Band = "red"
)

// BandFor classifies pct: green below 50, yellow from 50 to 80, red above 80.
func BandFor(pct int) Band {
	switch {
	case pct > 80:
		return BandRed
	case pct >= 50:
		return BandYellow
	default:
		return BandGreen
	}
}

// FormatDuration renders seconds as "45s", "3m 20s" or "1h 5m".
func FormatDuration(secs float64) string {
	s := int64(secs)
	switch {
	case s < 60:
		return fmt.Sprintf("%ds", s)
	case s < 3600:
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	default:
		return fmt.Sprintf("%dh %dm", s/3600, (s%3600)/60)
	}
}

// FormatCost renders a dollar amount; sub-dollar values keep four decimals.
// Zero renders as empty.
func FormatCost(c float64) string {
	switch {
	case c <= 0 || math.IsNaN(c):
		return ""
	case c < 1:
		return fmt.Sprintf("$%.4f", c)
	default:
		return fmt.Sprintf("$%.2f", c)
	}
}

// FormatTokens renders a token count compactly, e.g. 12345 → "12.3k".
// Zero renders as empty.
func FormatTokens(n int64) string {
	if n <= 0 {
		return ""
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return strings.ReplaceAll(humanize.SIWithDigits(float64(n), 1, ""), " ", "")
}

// TimeAgo renders t relative to now, or "" for the zero time.
func TimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Unassigned labels cards whose agent is empty or not in the roster.
const Unassigned = "Unassigned"

// Roster resolves agent names for display.
type Roster map[string]agent.Agent

// NewRoster indexes agents by name.
func NewRoster(agents []agent.Agent) Roster {
	r := make(Roster, len(agents))
	for _, a := range agents {
		r[a.Name] = a
	}
	return r
}

// Lookup returns the named agent, if present.
func (r Roster) Lookup(name string) (agent.Agent, bool) {
	if name == "" {
		return agent.Agent{}, false
	}
	a, ok := r[name]
	return a, ok
}

// Label is the display label for name.
func (r Roster) Label(name string) string {
	a, ok := r.Lookup(name)
	return AgentLabel(a, ok)
}

// AgentLabel formats a looked-up agent; a missing agent is Unassigned.
func AgentLabel(a agent.Agent, ok bool) string {
	if !ok {
		return Unassigned
	}
	name := a.DisplayName
	if name == "" {
		name = a.Name
	}
	if a.Emoji == "" {
		return name
	}
	return a.Emoji + " " + name
}
