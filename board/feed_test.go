package board

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avntro/mission-control/activity"
)

func event(id string, at time.Time) activity.Event {
	return activity.Event{ID: id, Agent: "dev", Action: activity.ActionTaskCreated, Success: true, CreatedAt: at}
}

func TestMergeFeed_FirstLoadReplaces(t *testing.T) {
	items := []activity.Event{event("e2", now), event("e1", now.Add(-time.Minute))}
	st, up := MergeFeed(FeedState{}, "", items)

	assert.True(t, up.FullReplace)
	assert.True(t, st.Loaded)
	require.Len(t, st.Items, 2)
	assert.False(t, st.Items[0].New)
	assert.Len(t, st.Seen, 2)

	p := up.Patch(st)
	require.Len(t, p.Ops, 1)
	assert.Equal(t, OpReplaceSection, p.Ops[0].Kind)
	assert.Equal(t, SectionFeed, p.Ops[0].Section)
}

func TestMergeFeed_PrependsUnseenMostRecentFirst(t *testing.T) {
	st, _ := MergeFeed(FeedState{}, "", []activity.Event{event("e1", now)})

	batch := []activity.Event{
		event("e2", now.Add(time.Second)),
		event("e3", now.Add(2*time.Second)),
		event("e1", now),
	}
	st, up := MergeFeed(st, "", batch)

	assert.False(t, up.FullReplace)
	require.Len(t, up.Prepended, 2)
	assert.Equal(t, "e3", up.Prepended[0].ID)
	assert.Equal(t, "e2", up.Prepended[1].ID)
	assert.True(t, up.Prepended[0].New)

	got := []string{}
	for _, it := range st.Items {
		got = append(got, it.ID)
	}
	assert.Equal(t, []string{"e3", "e2", "e1"}, got)

	p := up.Patch(st)
	require.Len(t, p.Ops, 1)
	assert.Equal(t, OpPrependRows, p.Ops[0].Kind)
	assert.Equal(t, "new", p.Ops[0].Rows[0].Get("new"))
}

func TestMergeFeed_IdempotentUnderRedelivery(t *testing.T) {
	st, _ := MergeFeed(FeedState{}, "", []activity.Event{event("e1", now)})
	batch := []activity.Event{event("e2", now.Add(time.Second)), event("e1", now)}

	st, first := MergeFeed(st, "", batch)
	assert.Equal(t, 1, first.Inserted(st))

	again, second := MergeFeed(st, "", batch)
	assert.Zero(t, second.Inserted(again))
	assert.True(t, second.Patch(again).Empty())
	assert.Len(t, again.Items, 2)
}

func TestMergeFeed_FilterChangeResets(t *testing.T) {
	st, _ := MergeFeed(FeedState{}, "", []activity.Event{event("e1", now), event("e2", now)})
	st, up := MergeFeed(st, "trading", []activity.Event{event("t1", now)})

	assert.True(t, up.FullReplace)
	assert.Equal(t, "trading", st.Filter)
	assert.Len(t, st.Seen, 1)
	assert.Len(t, st.Items, 1)
}

func TestMergeFeed_NoEviction(t *testing.T) {
	st, _ := MergeFeed(FeedState{}, "", []activity.Event{event("e1", now)})
	// A later page that no longer contains e1 does not remove it.
	st, _ = MergeFeed(st, "", []activity.Event{event("e2", now.Add(time.Second))})
	assert.Len(t, st.Items, 2)
}

func TestMergeFeed_DoesNotMutateInput(t *testing.T) {
	st, _ := MergeFeed(FeedState{}, "", []activity.Event{event("e1", now)})
	before := len(st.Seen)
	_, _ = MergeFeed(st, "", []activity.Event{event("e2", now)})
	assert.Equal(t, before, len(st.Seen))
}

func TestFeedState_ClearNew(t *testing.T) {
	st, _ := MergeFeed(FeedState{}, "", []activity.Event{event("e1", now)})
	st, _ = MergeFeed(st, "", []activity.Event{event("e2", now.Add(time.Second))})
	require.True(t, st.Items[0].New)

	cleared, p := st.ClearNew()
	assert.False(t, cleared.Items[0].New)
	assert.True(t, st.Items[0].New, "original state untouched")
	require.Len(t, p.Ops, 1)
	assert.Equal(t, OpSetField, p.Ops[0].Kind)
	assert.Equal(t, "e2", p.Ops[0].Key)
	assert.Equal(t, "new", p.Ops[0].Field)
}
