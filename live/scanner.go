package live

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"

	"github.com/avntro/mission-control/agent"
	"github.com/avntro/mission-control/board"
	"github.com/avntro/mission-control/config"
	"github.com/avntro/mission-control/internal/metrics"
	"github.com/avntro/mission-control/task"
)

const (
	// DefaultActiveWindow is how recently a session must have been updated
	// to count as running.
	DefaultActiveWindow = 2 * time.Minute
	// DefaultRecentWindow is how long a finished session stays on the board.
	DefaultRecentWindow = 15 * time.Minute

	fileCacheSize = 64
	// startCacheSize bounds the first-seen times kept for sessions that do
	// not report their own start.
	startCacheSize = 1024
)

// liveNamespace seeds the stable live task ids.
var liveNamespace = uuid.MustParse("6f0b8a52-2f7e-4c1e-9d1a-3b5c7e9f1a24")

type cachedFile struct {
	modTime  time.Time
	size     int64
	sessions []Session
}

// Scanner reads session files under the gateway home directory. It is safe
// for concurrent use.
type Scanner struct {
	home         string
	roster       []config.AgentConfig
	activeWindow time.Duration
	recentWindow time.Duration

	fs      afero.Fs
	cache   *lru.Cache[string, cachedFile]
	started *lru.Cache[string, time.Time]
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option customizes a Scanner.
type Option func(*Scanner)

// WithFs reads session files from fsys instead of the OS filesystem.
func WithFs(fsys afero.Fs) Option { return func(s *Scanner) { s.fs = fsys } }

// WithClock overrides the current time.
func WithClock(now func() time.Time) Option { return func(s *Scanner) { s.now = now } }

// WithMetrics records scan timings and live task counts.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Scanner) { s.metrics = m } }

// WithLogger sets the logger used for unreadable files.
func WithLogger(l *slog.Logger) Option { return func(s *Scanner) { s.logger = l } }

// New creates a Scanner over cfg.Home for the given roster.
func New(cfg config.OpenClawConfig, roster []config.AgentConfig, opts ...Option) *Scanner {
	// lru.New only fails on a non-positive size.
	cache, err := lru.New[string, cachedFile](fileCacheSize)
	if err != nil {
		panic(err)
	}
	started, err := lru.New[string, time.Time](startCacheSize)
	if err != nil {
		panic(err)
	}
	s := &Scanner{
		home:         cfg.Home,
		roster:       roster,
		activeWindow: cfg.ActiveWindow,
		recentWindow: cfg.RecentWindow,
		fs:           afero.NewOsFs(),
		cache:        cache,
		started:      started,
		logger:       slog.Default(),
		now:          time.Now,
	}
	if s.activeWindow <= 0 {
		s.activeWindow = DefaultActiveWindow
	}
	if s.recentWindow <= 0 {
		s.recentWindow = DefaultRecentWindow
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionsPath is where the gateway keeps an agent's session index.
func (s *Scanner) SessionsPath(agentName string) string {
	return filepath.Join(s.home, "agents", agentName, "sessions", "sessions.json")
}

// Sessions returns an agent's sessions, most recent first. A missing file
// yields no sessions.
func (s *Scanner) Sessions(agentName string) ([]Session, error) {
	path := s.SessionsPath(agentName)
	fi, err := s.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if c, ok := s.cache.Get(path); ok && c.modTime.Equal(fi.ModTime()) && c.size == fi.Size() {
		return c.sessions, nil
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	sessions := ParseSessions(agentName, data)
	s.cache.Add(path, cachedFile{modTime: fi.ModTime(), size: fi.Size(), sessions: sessions})
	return sessions, nil
}

// each calls fn with every roster agent's sessions. Unreadable files are
// logged and skipped.
func (s *Scanner) each(ctx context.Context, fn func(a config.AgentConfig, sessions []Session)) error {
	for _, a := range s.roster {
		if err := ctx.Err(); err != nil {
			return err
		}
		sessions, err := s.Sessions(a.Name)
		if err != nil {
			s.logger.Warn("live: skip session file", slog.String("agent", a.Name), slog.Any("err", err))
			continue
		}
		fn(a, sessions)
	}
	return nil
}

// LiveTasks returns one task per session updated within the recent window.
// Running sessions are in_progress, sessions whose last run was aborted go
// to review, and the rest are done.
func (s *Scanner) LiveTasks(ctx context.Context) ([]task.Task, error) {
	start := time.Now()
	now := s.now()
	out := []task.Task{}
	err := s.each(ctx, func(a config.AgentConfig, sessions []Session) {
		for _, sess := range sessions {
			if sess.UpdatedAt.IsZero() || now.Sub(sess.UpdatedAt) > s.recentWindow {
				continue
			}
			out = append(out, s.toTask(sess, now))
		}
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveScan("live_tasks", time.Since(start))
	byLane := map[string]int{}
	for _, t := range out {
		byLane[string(t.Status)]++
	}
	s.metrics.SetLiveTasks(byLane)
	return out, nil
}

func (s *Scanner) toTask(sess Session, now time.Time) task.Task {
	source := sess.Source()
	title := sess.Label
	if title == "" {
		title = fmt.Sprintf("[%s] %s session", source, sess.Agent)
	}
	t := task.Task{
		ID:            LiveID(sess.Key),
		Title:         title,
		Description:   sess.SessionID,
		Priority:      task.PriorityMedium,
		AssignedAgent: sess.Agent,
		CreatedAt:     s.startOf(sess),
		UpdatedAt:     sess.UpdatedAt,
		Tokens:        sess.Tokens(),
		Cost:          sess.Cost(),
		Model:         sess.Model,
		IsLive:        true,
		Source:        source,
		SessionKey:    sess.Key,
	}
	switch {
	case now.Sub(sess.UpdatedAt) <= s.activeWindow:
		t.Status = task.StatusInProgress
	case sess.AbortedLastRun:
		t.Status = task.StatusReview
	default:
		t.Status = task.StatusDone
		completed := sess.UpdatedAt
		t.CompletedAt = &completed
		if d := sess.UpdatedAt.Sub(t.CreatedAt).Seconds(); d > 0 {
			t.Duration = &d
		}
	}
	return t
}

// startOf returns when sess began. Sessions without a reported start are
// pinned to the update time at which this scanner first saw them, so a
// running timer never moves backwards as the session keeps writing.
func (s *Scanner) startOf(sess Session) time.Time {
	if !sess.CreatedAt.IsZero() {
		return sess.CreatedAt
	}
	if first, ok, _ := s.started.PeekOrAdd(sess.Key, sess.UpdatedAt); ok && first.Before(sess.UpdatedAt) {
		return first
	}
	return sess.UpdatedAt
}

// LiveID derives the stable id of the live task for a session key.
func LiveID(sessionKey string) string {
	return "live-" + uuid.NewSHA1(liveNamespace, []byte(sessionKey)).String()[:8]
}

// AgentStats reports telemetry for every roster agent, including agents with
// no session file.
func (s *Scanner) AgentStats(ctx context.Context) (map[string]agent.Stats, error) {
	start := time.Now()
	now := s.now()
	out := make(map[string]agent.Stats, len(s.roster))
	err := s.each(ctx, func(a config.AgentConfig, sessions []Session) {
		out[a.Name] = s.stats(a, sessions, now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveScan("agent_stats", time.Since(start))
	return out, nil
}

func (s *Scanner) stats(a config.AgentConfig, sessions []Session, now time.Time) agent.Stats {
	st := agent.Stats{Sessions: make([]agent.Session, 0, len(sessions))}
	model := a.Model
	var mainSess *Session
	for i, sess := range sessions {
		active := !sess.UpdatedAt.IsZero() && now.Sub(sess.UpdatedAt) <= s.activeWindow
		cost := sess.Cost()
		st.TotalCost += cost
		if active {
			st.Active = true
			st.ActiveSessions++
		}
		if sess.Source() == task.SourceSubagent {
			st.SubagentCount++
			if active {
				st.ActiveSubagents++
			}
		}
		if sess.Key == MainSessionKey(a.Name) {
			mainSess = &sessions[i]
		}
		st.Sessions = append(st.Sessions, agent.Session{
			Key:       sess.Key,
			Active:    active,
			Tokens:    sess.Tokens(),
			Cost:      cost,
			Model:     sess.Model,
			UpdatedAt: sess.UpdatedAt,
		})
	}

	st.ContextLimit = ContextLimit(model)
	if mainSess != nil {
		st.MainSessionTokens = mainSess.Tokens()
		switch {
		case mainSess.ContextTokens > 0:
			st.ContextLimit = mainSess.ContextTokens
		case mainSess.Model != "":
			st.ContextLimit = ContextLimit(mainSess.Model)
		}
	}
	st.ContextPct = board.ContextPercent(st.MainSessionTokens, st.ContextLimit)
	return st
}
