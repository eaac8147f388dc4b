// Package board reconciles persisted and live tasks into kanban lanes and
// turns fetched dashboard data into keyed view snapshots that can be diffed
// into minimal patches.
//
// Everything here is a pure function of its inputs. Callers own the previous
// snapshot and feed state and pass them back in.
package board

import (
	"github.com/avntro/mission-control/task"
)

// DefaultLaneCap is how many cards a collapsed lane shows.
const DefaultLaneCap = 8

// Board holds the cards of each lane in display order.
type Board struct {
	Todo       []task.Task `json:"todo"`
	InProgress []task.Task `json:"in_progress"`
	Review     []task.Task `json:"review"`
	Done       []task.Task `json:"done"`
}

func (b *Board) lane(s task.Status) *[]task.Task {
	switch s {
	case task.StatusInProgress:
		return &b.InProgress
	case task.StatusReview:
		return &b.Review
	case task.StatusDone:
		return &b.Done
	default:
		return &b.Todo
	}
}

// Lane returns the cards in lane s.
func (b Board) Lane(s task.Status) []task.Task {
	return *b.lane(s)
}

// Len is the total number of cards on the board.
func (b Board) Len() int {
	return len(b.Todo) + len(b.InProgress) + len(b.Review) + len(b.Done)
}

// MergeBoard buckets persisted then live tasks into lanes. A task whose status
// is not a lane goes to todo when persisted and in_progress when live; its
// Status is rewritten to the lane it landed in. Within a lane, persisted
// tasks precede live ones and each source keeps its input order. The two
// sources are never deduplicated against each other.
func MergeBoard(persisted, live []task.Task) Board {
	b := Board{
		Todo:       []task.Task{},
		InProgress: []task.Task{},
		Review:     []task.Task{},
		Done:       []task.Task{},
	}
	place := func(t task.Task, isLive bool) {
		lane := t.Status.LaneFor(isLive)
		t.Status = lane
		t.IsLive = isLive
		l := b.lane(lane)
		*l = append(*l, t)
	}
	for _, t := range persisted {
		place(t, false)
	}
	for _, t := range live {
		place(t, true)
	}
	return b
}

// Expansion records which lanes the user expanded past the cap. It is view
// state only.
type Expansion map[task.Status]bool

// Toggle flips lane s and returns the new state.
func (e Expansion) Toggle(s task.Status) bool {
	e[s] = !e[s]
	return e[s]
}

// Lane is one column prepared for display.
type Lane struct {
	Status  task.Status `json:"status"`
	Visible []task.Task `json:"visible"`
	Hidden  int         `json:"hidden"`
	Total   int         `json:"total"`
}

// Page returns lane s limited to limit cards unless expanded. A limit of
// zero or less means DefaultLaneCap.
func (b Board) Page(s task.Status, limit int, expanded bool) Lane {
	if limit <= 0 {
		limit = DefaultLaneCap
	}
	all := b.Lane(s)
	l := Lane{Status: s, Visible: all, Total: len(all)}
	if !expanded && len(all) > limit {
		l.Visible = all[:limit]
		l.Hidden = len(all) - limit
	}
	return l
}

// Pages returns every lane in board order.
func (b Board) Pages(limit int, exp Expansion) []Lane {
	out := make([]Lane, 0, len(task.Lanes))
	for _, s := range task.Lanes {
		out = append(out, b.Page(s, limit, exp[s]))
	}
	return out
}
