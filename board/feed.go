package board

import (
	"maps"
	"sort"
	"strconv"

	"github.com/avntro/mission-control/activity"
)

// FeedItem is a feed event plus its transient highlight.
type FeedItem struct {
	activity.Event
	New bool `json:"new"`
}

// FeedState is what the feed has shown so far. The zero value is an
// unloaded feed.
type FeedState struct {
	Loaded bool
	Filter string
	Seen   map[string]struct{}
	Items  []FeedItem
}

// FeedUpdate describes how to change the rendered feed.
type FeedUpdate struct {
	FullReplace bool
	Prepended   []FeedItem
}

// Inserted counts the rows the update adds.
func (u FeedUpdate) Inserted(s FeedState) int {
	if u.FullReplace {
		return len(s.Items)
	}
	return len(u.Prepended)
}

// MergeFeed folds a freshly fetched page of events into state. The first
// load, or a changed agent filter, replaces everything and resets the seen
// set. Otherwise only unseen events are prepended, most recent first, and
// flagged New. Nothing is ever evicted, and delivering the same items twice
// inserts nothing the second time.
func MergeFeed(state FeedState, filter string, items []activity.Event) (FeedState, FeedUpdate) {
	if !state.Loaded || state.Filter != filter {
		next := FeedState{
			Loaded: true,
			Filter: filter,
			Seen:   make(map[string]struct{}, len(items)),
			Items:  make([]FeedItem, 0, len(items)),
		}
		for _, e := range items {
			if _, dup := next.Seen[e.ID]; dup {
				continue
			}
			next.Seen[e.ID] = struct{}{}
			next.Items = append(next.Items, FeedItem{Event: e})
		}
		return next, FeedUpdate{FullReplace: true}
	}

	var delta []FeedItem
	seen := state.Seen
	copied := false
	for _, e := range items {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		if !copied {
			seen = maps.Clone(state.Seen)
			if seen == nil {
				seen = map[string]struct{}{}
			}
			copied = true
		}
		seen[e.ID] = struct{}{}
		delta = append(delta, FeedItem{Event: e, New: true})
	}
	if len(delta) == 0 {
		return state, FeedUpdate{}
	}
	sort.SliceStable(delta, func(i, j int) bool { return delta[i].CreatedAt.After(delta[j].CreatedAt) })

	next := state
	next.Seen = seen
	next.Items = make([]FeedItem, 0, len(delta)+len(state.Items))
	next.Items = append(next.Items, delta...)
	next.Items = append(next.Items, state.Items...)
	return next, FeedUpdate{Prepended: delta}
}

// ClearNew drops the highlight from every item, as happens one frame after
// insertion, and returns the field updates that un-highlight the rows.
func (s FeedState) ClearNew() (FeedState, Patch) {
	var p Patch
	items := make([]FeedItem, len(s.Items))
	for i, it := range s.Items {
		if it.New {
			p.Ops = append(p.Ops, PatchOp{Kind: OpSetField, Section: SectionFeed, Key: it.ID, Field: "new"})
		}
		it.New = false
		items[i] = it
	}
	s.Items = items
	return s, p
}

// FeedRow renders one feed item.
func FeedRow(it FeedItem) Row {
	status := "ok"
	if !it.Success {
		status = "failed"
	}
	isNew := ""
	if it.New {
		isNew = "new"
	}
	return Row{Key: it.ID, Fields: []Field{
		{"agent", it.Agent},
		{"action", it.Action.Label()},
		{"details", it.Details},
		{"status", status},
		{"at", it.CreatedAt.UTC().Format("15:04:05")},
		{"new", isNew},
		{"task", it.TaskID},
		{"ts", strconv.FormatInt(it.CreatedAt.Unix(), 10)},
	}}
}

// Patch converts the update into renderer operations on the feed section.
func (u FeedUpdate) Patch(s FeedState) Patch {
	if u.FullReplace {
		rows := make([]Row, 0, len(s.Items))
		for _, it := range s.Items {
			rows = append(rows, FeedRow(it))
		}
		return Patch{Ops: []PatchOp{{Kind: OpReplaceSection, Section: SectionFeed, Rows: rows}}}
	}
	if len(u.Prepended) == 0 {
		return Patch{}
	}
	rows := make([]Row, 0, len(u.Prepended))
	for _, it := range u.Prepended {
		rows = append(rows, FeedRow(it))
	}
	return Patch{Ops: []PatchOp{{Kind: OpPrependRows, Section: SectionFeed, Rows: rows}}}
}
