package poller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avntro/mission-control/activity"
	"github.com/avntro/mission-control/agent"
	"github.com/avntro/mission-control/board"
	"github.com/avntro/mission-control/internal/logging"
	"github.com/avntro/mission-control/internal/metrics"
	"github.com/avntro/mission-control/task"
	"github.com/avntro/mission-control/workspace"
)

type fakeSource struct {
	mu sync.Mutex

	tasks     []task.Task
	live      []task.Task
	agents    []agent.Agent
	agentsErr error
	stats     map[string]agent.Stats
	events    []activity.Event
	changes   []workspace.Change
	file      workspace.Content
	saved     string
	deleted   []string

	fileCalls    int
	activityArgs []activity.Filter
}

func (f *fakeSource) Tasks(context.Context, task.Filter) ([]task.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]task.Task(nil), f.tasks...), nil
}

func (f *fakeSource) LiveTasks(context.Context) ([]task.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]task.Task(nil), f.live...), nil
}

func (f *fakeSource) Agents(context.Context) ([]agent.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.agentsErr != nil {
		return nil, f.agentsErr
	}
	return append([]agent.Agent(nil), f.agents...), nil
}

func (f *fakeSource) AgentStats(context.Context) (map[string]agent.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats, nil
}

func (f *fakeSource) Activity(_ context.Context, filter activity.Filter) ([]activity.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activityArgs = append(f.activityArgs, filter)
	return append([]activity.Event(nil), f.events...), nil
}

func (f *fakeSource) WorkspaceChanges(context.Context, time.Time) ([]workspace.Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changes, nil
}

func (f *fakeSource) WorkspaceFile(_ context.Context, agentName, file string) (workspace.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fileCalls++
	c := f.file
	c.Agent, c.Filename = agentName, file
	return c, nil
}

func (f *fakeSource) SaveWorkspaceFile(_ context.Context, _, file, content string) (workspace.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = content
	f.file.Content = content
	return workspace.File{Name: file, Size: int64(len(content))}, nil
}

func (f *fakeSource) DeleteTask(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newFakeSource() *fakeSource {
	return &fakeSource{
		tasks: []task.Task{{ID: "t1", Title: "review me", Status: task.StatusReview, AssignedAgent: "trading", CreatedAt: t0}},
		live:  []task.Task{{ID: "live1", SessionKey: "s1", Status: task.StatusInProgress, AssignedAgent: "trading", CreatedAt: t0.Add(-time.Minute)}},
		agents: []agent.Agent{
			{Name: "dev", DisplayName: "Dev", Status: agent.StatusIdle},
			{Name: "trading", DisplayName: "Trading / AA", Status: agent.StatusBusy},
		},
		stats: map[string]agent.Stats{"trading": {Active: true, MainSessionTokens: 210000, ContextLimit: 200000}},
		events: []activity.Event{
			{ID: "e1", Agent: "trading", Action: activity.ActionTaskStarted, Success: true, CreatedAt: t0},
		},
		file: workspace.Content{Content: "v1"},
	}
}

// harness runs fetches inline and processes loop messages on demand.
type harness struct {
	p     *Poller
	src   *fakeSource
	doc   *Document
	clock *time.Time
	ctx   context.Context
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	src := newFakeSource()
	doc := NewDocument()
	clock := t0
	opts.Logger = logging.Discard()
	opts.Now = func() time.Time { return clock }
	p := New(src, doc, opts)
	p.spawn = func(fn func()) { fn() }
	return &harness{p: p, src: src, doc: doc, clock: &clock, ctx: context.Background()}
}

// settle runs queued commands and handles delivered results until idle.
func (h *harness) settle() {
	for {
		select {
		case fn := <-h.p.commands:
			fn()
		case m := <-h.p.msgs:
			h.p.handle(h.ctx, m)
		default:
			return
		}
	}
}

func (h *harness) poll() {
	h.p.startPoll(h.ctx)
	h.settle()
}

func TestPoller_FirstPollRendersEverything(t *testing.T) {
	h := newHarness(t, Options{})
	h.poll()

	review := h.doc.Rows(board.LaneSection(task.StatusReview))
	require.Len(t, review, 1)
	assert.Equal(t, "t1", review[0].Key)

	inProgress := h.doc.Rows(board.LaneSection(task.StatusInProgress))
	require.Len(t, inProgress, 1)
	assert.Equal(t, "live1", inProgress[0].Key)
	assert.Equal(t, "live", inProgress[0].Get("live"))

	assert.Equal(t, "105%", h.doc.Field(board.SectionStats, "trading", "context_pct"))
	assert.Equal(t, "100", h.doc.Field(board.SectionStats, "trading", "bar_width"))
	assert.Equal(t, "red", h.doc.Field(board.SectionStats, "trading", "band"))

	feed := h.doc.Rows(board.SectionFeed)
	require.Len(t, feed, 1)
	assert.Empty(t, feed[0].Get("new"), "first load is not highlighted")
}

func TestPoller_OneMessagePerBoardCycle(t *testing.T) {
	h := newHarness(t, Options{})
	h.p.startPoll(h.ctx)

	var kinds []string
	for len(h.p.msgs) > 0 {
		switch (<-h.p.msgs).(type) {
		case pollDone:
			kinds = append(kinds, "board")
		case feedDone:
			kinds = append(kinds, "feed")
		}
	}
	assert.ElementsMatch(t, []string{"board", "feed"}, kinds)
}

func TestPoller_AgentFieldChangePatchesInPlace(t *testing.T) {
	h := newHarness(t, Options{})
	h.poll()
	require.Equal(t, 1, h.doc.Rebuilds(board.SectionAgents))
	before, ok := h.doc.Node(board.SectionAgents, "dev")
	require.True(t, ok)

	h.src.mu.Lock()
	h.src.agents[0].Status = agent.StatusBusy
	h.src.mu.Unlock()
	h.poll()

	after, _ := h.doc.Node(board.SectionAgents, "dev")
	assert.Same(t, before, after, "node identity survives a field update")
	assert.Equal(t, "busy", h.doc.Field(board.SectionAgents, "dev", "status"))
	assert.Equal(t, 1, h.doc.Rebuilds(board.SectionAgents))

	h.src.mu.Lock()
	h.src.agents = append(h.src.agents, agent.Agent{Name: "voice", DisplayName: "Voice"})
	h.src.mu.Unlock()
	h.poll()
	assert.Equal(t, 2, h.doc.Rebuilds(board.SectionAgents))
	assert.Len(t, h.doc.Rows(board.SectionAgents), 3)
}

func TestPoller_FailedFetchKeepsLastGood(t *testing.T) {
	m := metrics.New()
	h := newHarness(t, Options{Metrics: m})
	h.poll()

	h.src.mu.Lock()
	h.src.agentsErr = errors.New("connection refused")
	h.src.tasks = append(h.src.tasks, task.Task{ID: "t2", Title: "new"})
	h.src.mu.Unlock()
	h.poll()

	assert.Len(t, h.doc.Rows(board.SectionAgents), 2, "agents stay at last good value")
	assert.Equal(t, "Trading / AA", h.doc.Rows(board.SectionAgents)[1].Get("label"))
	assert.Len(t, h.doc.Rows(board.LaneSection(task.StatusTodo)), 1, "tasks still update")
	expected := `
# HELP mission_control_poller_fetch_failures_total Failed dashboard fetches by section.
# TYPE mission_control_poller_fetch_failures_total counter
mission_control_poller_fetch_failures_total{section="agents"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "mission_control_poller_fetch_failures_total"))
}

// failingRenderer drops the first patch that touches section and reports an error.
type failingRenderer struct {
	*Document
	section string
	failed  bool
}

func (r *failingRenderer) Apply(p board.Patch) error {
	if !r.failed {
		for _, op := range p.Ops {
			if op.Section == r.section {
				r.failed = true
				return ErrUnknownNode
			}
		}
	}
	return r.Document.Apply(p)
}

func TestPoller_RenderFailureRebuildsNextFrame(t *testing.T) {
	h := newHarness(t, Options{})
	h.poll()
	fr := &failingRenderer{Document: h.doc, section: board.SectionAgents}
	h.p.r = fr

	h.src.mu.Lock()
	h.src.agents[0].Status = agent.StatusBusy
	h.src.mu.Unlock()
	h.poll()
	require.True(t, fr.failed)
	assert.Equal(t, "idle", h.doc.Field(board.SectionAgents, "dev", "status"), "dropped patch left the old value")

	*h.clock = t0.Add(time.Second)
	h.p.tick()
	assert.Equal(t, "busy", h.doc.Field(board.SectionAgents, "dev", "status"))
	assert.Equal(t, 2, h.doc.Rebuilds(board.SectionAgents), "recovery rebuilds the section")
	assert.Len(t, h.doc.Rows(board.LaneSection(task.StatusReview)), 1)
}

func TestPoller_TickUpdatesDurationWithoutIO(t *testing.T) {
	h := newHarness(t, Options{})
	h.poll()
	lane := board.LaneSection(task.StatusInProgress)
	require.Equal(t, "1m 0s", h.doc.Field(lane, "live1", "duration"))
	calls := len(h.src.activityArgs)

	last := -1.0
	for i := 1; i <= 5; i++ {
		*h.clock = t0.Add(time.Duration(i) * time.Second)
		h.p.tick()
		secs, ok := board.ComputeDuration(h.p.data.Live[0], *h.clock)
		require.True(t, ok)
		assert.Greater(t, secs, last)
		last = secs
	}
	assert.Equal(t, "1m 5s", h.doc.Field(lane, "live1", "duration"))
	assert.Equal(t, 1, h.doc.Rebuilds(lane), "ticks patch fields only")
	assert.Equal(t, calls, len(h.src.activityArgs), "tick does no fetches")
}

func TestPoller_FeedPrependsAndClearsHighlight(t *testing.T) {
	h := newHarness(t, Options{})
	h.poll()

	h.src.mu.Lock()
	h.src.events = append([]activity.Event{
		{ID: "e2", Agent: "dev", Action: activity.ActionTaskCreated, Success: true, CreatedAt: t0.Add(time.Second)},
	}, h.src.events...)
	h.src.mu.Unlock()
	h.poll()

	feed := h.doc.Rows(board.SectionFeed)
	require.Len(t, feed, 2)
	assert.Equal(t, "e2", feed[0].Key)
	assert.Equal(t, "new", feed[0].Get("new"))
	assert.Equal(t, 1, h.doc.Rebuilds(board.SectionFeed))

	h.p.tick()
	assert.Empty(t, h.doc.Field(board.SectionFeed, "e2", "new"))

	// Redelivery inserts nothing.
	h.poll()
	assert.Len(t, h.doc.Rows(board.SectionFeed), 2)
}

func TestPoller_AgentFilterResetsFeed(t *testing.T) {
	h := newHarness(t, Options{FeedLimit: 20})
	h.poll()

	h.p.SetAgentFilter(h.ctx, "trading")
	h.settle()
	require.Len(t, h.p.refresh, 1)
	<-h.p.refresh
	h.poll()

	last := h.src.activityArgs[len(h.src.activityArgs)-1]
	assert.Equal(t, activity.Filter{Agent: "trading", Limit: 20}, last)
	assert.Equal(t, 2, h.doc.Rebuilds(board.SectionFeed))
	assert.Equal(t, "trading", h.p.feed.Filter)
}

func TestPoller_ToggleLane(t *testing.T) {
	h := newHarness(t, Options{LaneCap: 2})
	h.src.tasks = nil
	for _, id := range []string{"a", "b", "c"} {
		h.src.tasks = append(h.src.tasks, task.Task{ID: id, Title: id})
	}
	h.poll()
	lane := board.LaneSection(task.StatusTodo)
	assert.Len(t, h.doc.Rows(lane), 2)
	assert.Equal(t, "+1 more", h.doc.Footer(lane))

	h.p.ToggleLane(h.ctx, task.StatusTodo)
	h.settle()
	assert.Len(t, h.doc.Rows(lane), 3)
	assert.Empty(t, h.doc.Footer(lane))
}

func TestPoller_EditModeDefersRefresh(t *testing.T) {
	h := newHarness(t, Options{})
	ref := FileRef{Agent: "dev", Name: "MEMORY.md"}

	h.p.OpenFile(h.ctx, ref)
	h.settle()
	require.Equal(t, 1, h.src.fileCalls)
	assert.Equal(t, "v1", h.p.editor.Content.Content)

	h.p.BeginEdit(h.ctx)
	h.settle()
	require.True(t, h.p.editor.Editing)
	assert.Equal(t, "v1", h.p.editor.Buffer)

	h.src.mu.Lock()
	h.src.file.Content = "v2 from disk"
	h.src.changes = []workspace.Change{{Agent: "dev", Filename: "MEMORY.md", Modified: t0.Add(time.Second)}}
	h.src.mu.Unlock()

	for i := 0; i < 3; i++ {
		h.p.startCheck(h.ctx)
		h.settle()
	}
	assert.Equal(t, 1, h.src.fileCalls, "no refresh while editing")
	assert.Equal(t, "v1", h.p.editor.Buffer)
	assert.True(t, h.p.editor.Pending())

	h.p.EndEdit(h.ctx)
	h.settle()
	assert.Equal(t, 2, h.src.fileCalls, "pending change applied on exit")
	assert.Equal(t, "v2 from disk", h.p.editor.Content.Content)
	assert.False(t, h.p.editor.Pending())
}

func TestPoller_ChangeRefetchesWhenNotEditing(t *testing.T) {
	h := newHarness(t, Options{})
	h.p.OpenFile(h.ctx, FileRef{Agent: "dev", Name: "SOUL.md"})
	h.settle()

	h.src.changes = []workspace.Change{{Agent: "voice", Filename: "SOUL.md"}}
	h.p.startCheck(h.ctx)
	h.settle()
	assert.Equal(t, 1, h.src.fileCalls, "other agent's file")

	h.src.changes = []workspace.Change{{Agent: "dev", Filename: "SOUL.md"}}
	h.p.startCheck(h.ctx)
	h.settle()
	assert.Equal(t, 2, h.src.fileCalls)
}

func TestPoller_SaveEdit(t *testing.T) {
	h := newHarness(t, Options{})
	h.p.OpenFile(h.ctx, FileRef{Agent: "dev", Name: "SOUL.md"})
	h.p.BeginEdit(h.ctx)
	h.p.SetBuffer(h.ctx, "rewritten")
	h.p.SaveEdit(h.ctx)
	h.settle()

	assert.Equal(t, "rewritten", h.src.saved)
	assert.False(t, h.p.editor.Editing)
	assert.Equal(t, "rewritten", h.p.editor.Content.Content)
}

func TestPoller_DeleteNeedsConfirmation(t *testing.T) {
	var prompts []string
	answer := false
	h := newHarness(t, Options{Confirmer: ConfirmFunc(func(p string) bool {
		prompts = append(prompts, p)
		return answer
	})})

	sent, err := h.p.DeleteTask(h.ctx, "t1")
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, h.src.deleted)

	answer = true
	sent, err = h.p.DeleteTask(h.ctx, "t1")
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, []string{"t1"}, h.src.deleted)
	assert.Equal(t, []string{"Delete task t1?", "Delete task t1?"}, prompts)
	assert.Len(t, h.p.refresh, 1)
}

func TestPoller_DeleteWithoutConfirmerIsRefused(t *testing.T) {
	h := newHarness(t, Options{})
	sent, err := h.p.DeleteTask(h.ctx, "t1")
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestPoller_Run(t *testing.T) {
	src := newFakeSource()
	doc := NewDocument()
	p := New(src, doc, Options{
		PollInterval:   10 * time.Millisecond,
		TickInterval:   5 * time.Millisecond,
		WorkspaceCheck: 5 * time.Millisecond,
		Logger:         logging.Discard(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(doc.Rows(board.SectionAgents)) == 2 && len(doc.Rows(board.SectionFeed)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
