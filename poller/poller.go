// Package poller drives the dashboard: it polls the API on fixed intervals,
// folds the results into the board snapshot and feed state, and hands the
// minimal patches to a Renderer.
//
// All state is owned by the single goroutine running Run. Fetches happen on
// their own goroutines and report back to the loop as messages, so a slow or
// failing endpoint never blocks the timers. There is no request
// cancellation: late responses are applied in arrival order.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avntro/mission-control/activity"
	"github.com/avntro/mission-control/agent"
	"github.com/avntro/mission-control/board"
	"github.com/avntro/mission-control/internal/metrics"
	"github.com/avntro/mission-control/task"
	"github.com/avntro/mission-control/workspace"
)

// Source is the part of the API the poller reads. *Client implements it.
type Source interface {
	Tasks(ctx context.Context, f task.Filter) ([]task.Task, error)
	LiveTasks(ctx context.Context) ([]task.Task, error)
	Agents(ctx context.Context) ([]agent.Agent, error)
	AgentStats(ctx context.Context) (map[string]agent.Stats, error)
	Activity(ctx context.Context, f activity.Filter) ([]activity.Event, error)
	WorkspaceChanges(ctx context.Context, since time.Time) ([]workspace.Change, error)
	WorkspaceFile(ctx context.Context, agentName, file string) (workspace.Content, error)
	SaveWorkspaceFile(ctx context.Context, agentName, file, content string) (workspace.File, error)
	DeleteTask(ctx context.Context, id string) error
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

// Confirm calls f.
func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Options configures a Poller.
type Options struct {
	PollInterval   time.Duration
	TickInterval   time.Duration
	WorkspaceCheck time.Duration
	LaneCap        int
	FeedLimit      int
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Confirmer      Confirmer
	Now            func() time.Time
}

func (o *Options) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 9 * time.Second
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.WorkspaceCheck <= 0 {
		o.WorkspaceCheck = 5 * time.Second
	}
	if o.LaneCap <= 0 {
		o.LaneCap = board.DefaultLaneCap
	}
	if o.FeedLimit <= 0 {
		o.FeedLimit = activity.DefaultLimit
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Fetch sections, also used as metric labels.
const (
	fetchTasks     = "tasks"
	fetchLive      = "live"
	fetchAgents    = "agents"
	fetchStats     = "stats"
	fetchFeed      = "feed"
	fetchChanges   = "workspace_changes"
	fetchFile      = "workspace_file"
	fetchSave      = "workspace_save"
	messageBacklog = 16
)

type pollDone struct{ res board.FetchResult }

type feedDone struct {
	filter string
	items  []activity.Event
	err    error
}

type changesDone struct {
	checkedAt time.Time
	changes   []workspace.Change
	err       error
}

type fileDone struct {
	content workspace.Content
	err     error
}

type saveDone struct {
	ref FileRef
	err error
}

// Poller is the dashboard event loop.
type Poller struct {
	src  Source
	r    Renderer
	opts Options
	log  *slog.Logger

	// spawn runs a fetch; tests replace it to run fetches inline.
	spawn    func(func())
	msgs     chan any
	commands chan func()
	refresh  chan struct{}

	// Loop-owned state.
	data      board.Data
	loaded    bool
	snap      board.Snapshot
	view      board.View
	feed      board.FeedState
	filter    string
	editor    Editor
	lastCheck time.Time
}

// New creates a Poller reading from src and rendering to r.
func New(src Source, r Renderer, opts Options) *Poller {
	opts.defaults()
	return &Poller{
		src:      src,
		r:        r,
		opts:     opts,
		log:      opts.Logger,
		spawn:    func(fn func()) { go fn() },
		msgs:     make(chan any, messageBacklog),
		commands: make(chan func(), messageBacklog),
		refresh:  make(chan struct{}, 1),
		view:     board.View{LaneCap: opts.LaneCap, Expansion: board.Expansion{}},
	}
}

// Run polls until ctx is done. The first poll starts immediately.
func (p *Poller) Run(ctx context.Context) error {
	poll := time.NewTicker(p.opts.PollInterval)
	defer poll.Stop()
	tick := time.NewTicker(p.opts.TickInterval)
	defer tick.Stop()
	check := time.NewTicker(p.opts.WorkspaceCheck)
	defer check.Stop()

	p.startPoll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-poll.C:
			p.startPoll(ctx)
		case <-p.refresh:
			p.startPoll(ctx)
		case <-tick.C:
			p.tick()
		case <-check.C:
			p.startCheck(ctx)
		case m := <-p.msgs:
			p.handle(ctx, m)
		case fn := <-p.commands:
			fn()
		}
	}
}

// deliver hands a fetch result to the loop unless it is shutting down.
func (p *Poller) deliver(ctx context.Context, m any) {
	select {
	case p.msgs <- m:
	case <-ctx.Done():
	}
}

// startPoll fetches the four board sections concurrently and delivers them
// as one result, so the board renders only once all of them resolved. The
// feed is fetched alongside and delivered on its own.
func (p *Poller) startPoll(ctx context.Context) {
	filter := p.filter
	p.spawn(func() {
		var res board.FetchResult
		var g errgroup.Group
		g.Go(func() error {
			res.Tasks, res.TasksErr = p.src.Tasks(ctx, task.Filter{})
			return nil
		})
		g.Go(func() error {
			res.Live, res.LiveErr = p.src.LiveTasks(ctx)
			return nil
		})
		g.Go(func() error {
			res.Agents, res.AgentsErr = p.src.Agents(ctx)
			return nil
		})
		g.Go(func() error {
			res.Stats, res.StatsErr = p.src.AgentStats(ctx)
			return nil
		})
		_ = g.Wait()
		p.deliver(ctx, pollDone{res: res})
	})
	p.spawn(func() {
		items, err := p.src.Activity(ctx, activity.Filter{Agent: filter, Limit: p.opts.FeedLimit})
		p.deliver(ctx, feedDone{filter: filter, items: items, err: err})
	})
}

// startCheck asks which workspace files changed since the last check. It
// does nothing while no file is open.
func (p *Poller) startCheck(ctx context.Context) {
	if p.editor.File == nil {
		return
	}
	since := p.lastCheck
	p.spawn(func() {
		checkedAt := p.opts.Now()
		changes, err := p.src.WorkspaceChanges(ctx, since)
		p.deliver(ctx, changesDone{checkedAt: checkedAt, changes: changes, err: err})
	})
}

func (p *Poller) startFile(ctx context.Context, ref FileRef) {
	p.spawn(func() {
		c, err := p.src.WorkspaceFile(ctx, ref.Agent, ref.Name)
		p.deliver(ctx, fileDone{content: c, err: err})
	})
}

func (p *Poller) fetchFailed(section string, err error) {
	p.opts.Metrics.IncFetchFailure(section)
	p.log.Warn("poller: fetch failed", slog.String("section", section), slog.Any("err", err))
}

func (p *Poller) handle(ctx context.Context, m any) {
	switch m := m.(type) {
	case pollDone:
		for section, err := range map[string]error{
			fetchTasks:  m.res.TasksErr,
			fetchLive:   m.res.LiveErr,
			fetchAgents: m.res.AgentsErr,
			fetchStats:  m.res.StatsErr,
		} {
			if err != nil {
				p.fetchFailed(section, err)
			}
		}
		p.data = p.data.Merge(m.res)
		p.loaded = true
		p.renderBoard()
	case feedDone:
		if m.err != nil {
			p.fetchFailed(fetchFeed, m.err)
			return
		}
		state, up := board.MergeFeed(p.feed, m.filter, m.items)
		p.feed = state
		p.apply(up.Patch(state))
	case changesDone:
		if m.err != nil {
			p.fetchFailed(fetchChanges, m.err)
			return
		}
		p.lastCheck = m.checkedAt
		if p.editor.Notice(m.changes) {
			p.startFile(ctx, *p.editor.File)
		}
	case fileDone:
		if m.err != nil {
			p.fetchFailed(fetchFile, m.err)
			return
		}
		p.editor.Loaded(m.content)
	case saveDone:
		if m.err != nil {
			p.fetchFailed(fetchSave, m.err)
			return
		}
		if p.editor.File != nil && *p.editor.File == m.ref {
			p.editor.EndEdit()
			p.startFile(ctx, m.ref)
		}
	}
}

// tick re-derives time-dependent labels from the data already fetched and
// drops the highlight of feed rows inserted on the previous frame. It never
// does I/O.
func (p *Poller) tick() {
	p.renderBoard()
	for _, it := range p.feed.Items {
		if it.New {
			state, patch := p.feed.ClearNew()
			p.feed = state
			p.apply(patch)
			break
		}
	}
}

func (p *Poller) renderBoard() {
	if !p.loaded {
		return
	}
	next := board.Reconcile(p.data, p.opts.Now(), p.view)
	if err := p.apply(board.Diff(p.snap, next)); err != nil {
		// The renderer no longer matches any known snapshot; the next
		// frame rebuilds every section.
		p.snap = board.Snapshot{}
		return
	}
	p.snap = next
}

func (p *Poller) apply(patch board.Patch) error {
	if patch.Empty() {
		return nil
	}
	if err := p.r.Apply(patch); err != nil {
		p.log.Error("poller: render failed", slog.Any("err", err))
		return err
	}
	return nil
}

// do runs fn on the loop goroutine.
func (p *Poller) do(ctx context.Context, fn func()) {
	select {
	case p.commands <- fn:
	case <-ctx.Done():
	}
}

// Refresh requests an immediate poll.
func (p *Poller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// ToggleLane expands or collapses a lane past the display cap.
func (p *Poller) ToggleLane(ctx context.Context, s task.Status) {
	p.do(ctx, func() {
		p.view.Expansion.Toggle(s)
		p.renderBoard()
	})
}

// SetAgentFilter restricts the feed to one agent ("" for all) and refetches.
func (p *Poller) SetAgentFilter(ctx context.Context, name string) {
	p.do(ctx, func() {
		p.filter = name
		p.Refresh()
	})
}

// OpenFile shows a workspace file and starts watching it for changes.
func (p *Poller) OpenFile(ctx context.Context, ref FileRef) {
	p.do(ctx, func() {
		p.editor.Open(ref)
		p.lastCheck = p.opts.Now()
		p.startFile(ctx, ref)
	})
}

// BeginEdit enters edit mode on the open file.
func (p *Poller) BeginEdit(ctx context.Context) {
	p.do(ctx, func() { p.editor.BeginEdit() })
}

// SetBuffer replaces the edit buffer.
func (p *Poller) SetBuffer(ctx context.Context, content string) {
	p.do(ctx, func() {
		if p.editor.Editing {
			p.editor.Buffer = content
		}
	})
}

// EndEdit leaves edit mode without saving and refetches the file if it
// changed meanwhile.
func (p *Poller) EndEdit(ctx context.Context) {
	p.do(ctx, func() {
		if p.editor.EndEdit() && p.editor.File != nil {
			p.startFile(ctx, *p.editor.File)
		}
	})
}

// SaveEdit writes the buffer and leaves edit mode once the save succeeds.
func (p *Poller) SaveEdit(ctx context.Context) {
	p.do(ctx, func() {
		if !p.editor.Editing || p.editor.File == nil {
			return
		}
		ref, content := *p.editor.File, p.editor.Buffer
		p.spawn(func() {
			_, err := p.src.SaveWorkspaceFile(ctx, ref.Agent, ref.Name, content)
			p.deliver(ctx, saveDone{ref: ref, err: err})
		})
	})
}

// DeleteTask removes a task after the user confirms, then refreshes. It
// reports whether the delete was sent.
func (p *Poller) DeleteTask(ctx context.Context, id string) (bool, error) {
	if p.opts.Confirmer == nil || !p.opts.Confirmer.Confirm(fmt.Sprintf("Delete task %s?", id)) {
		return false, nil
	}
	if err := p.src.DeleteTask(ctx, id); err != nil {
		return true, fmt.Errorf("delete task %s: %w", id, err)
	}
	p.Refresh()
	return true, nil
}
