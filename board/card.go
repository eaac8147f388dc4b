package board

import (
	"time"

	"github.com/avntro/mission-control/task"
)

// Card is a task with every display field derived.
type Card struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Lane      task.Status `json:"lane"`
	Priority  string      `json:"priority"`
	AgentName string      `json:"agent_name,omitempty"`
	Agent     string      `json:"agent"`
	IsLive    bool        `json:"is_live"`
	Source    string      `json:"source,omitempty"`
	Model     string      `json:"model,omitempty"`
	Duration  string      `json:"duration,omitempty"`
	Cost      string      `json:"cost,omitempty"`
	Tokens    string      `json:"tokens,omitempty"`
	Updated   string      `json:"updated,omitempty"`
	Completed string      `json:"completed,omitempty"`
}

// NewCard derives the display fields of t at now.
func NewCard(t task.Task, r Roster, now time.Time) Card {
	c := Card{
		ID:        t.ID,
		Title:     t.Title,
		Lane:      t.Status,
		Priority:  string(t.Priority),
		AgentName: t.AssignedAgent,
		Agent:     r.Label(t.AssignedAgent),
		IsLive:    t.IsLive,
		Source:    string(t.Source),
		Model:     t.Model,
		Cost:      FormatCost(t.Cost),
		Tokens:    FormatTokens(t.Tokens),
		Updated:   TimeAgo(t.UpdatedAt, now),
	}
	if secs, ok := ComputeDuration(t, now); ok {
		c.Duration = FormatDuration(secs)
	}
	if t.Status == task.StatusDone {
		c.Completed = TimeAgo(t.CompletedOrFallback(), now)
	}
	return c
}

// LaneCards is a paged lane of cards.
type LaneCards struct {
	Status task.Status `json:"status"`
	Cards  []Card      `json:"cards"`
	Hidden int         `json:"hidden"`
	Total  int         `json:"total"`
}

// Cards derives cards for every lane of b.
func (b Board) Cards(r Roster, now time.Time, limit int, exp Expansion) []LaneCards {
	pages := b.Pages(limit, exp)
	out := make([]LaneCards, 0, len(pages))
	for _, p := range pages {
		lc := LaneCards{Status: p.Status, Hidden: p.Hidden, Total: p.Total, Cards: make([]Card, 0, len(p.Visible))}
		for _, t := range p.Visible {
			lc.Cards = append(lc.Cards, NewCard(t, r, now))
		}
		out = append(out, lc)
	}
	return out
}
