// Package workspace serves the allow-listed markdown files in each agent's
// workspace directory and tracks when they change.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/avntro/mission-control/config"
	"github.com/avntro/mission-control/internal/markdown"
)

var (
	// ErrNotFound is returned for an unknown agent or a missing file.
	ErrNotFound = errors.New("workspace: not found")
	// ErrForbidden is returned for a file outside the allow-list.
	ErrForbidden = errors.New("workspace: file not allowed")
)

// File describes one workspace file.
type File struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Workspace is one agent's directory and the allow-listed files present in it.
type Workspace struct {
	Agent string `json:"agent"`
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
	Path  string `json:"path"`
	Files []File `json:"files"`
}

// Content is a file read for display or editing.
type Content struct {
	Agent    string    `json:"agent"`
	Filename string    `json:"filename"`
	Content  string    `json:"content"`
	HTML     string    `json:"html,omitempty"`
	Modified time.Time `json:"modified"`
}

// Change reports that a file was modified at a point in time.
type Change struct {
	Agent    string    `json:"agent"`
	Filename string    `json:"filename"`
	Modified time.Time `json:"modified"`
}

type fileKey struct{ agent, name string }

// Manager reads and writes workspace files. It is safe for concurrent use.
type Manager struct {
	fs      afero.Fs
	home    string
	agents  []config.AgentConfig
	allowed []string
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	journal map[fileKey]time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithFs uses fsys instead of the OS filesystem.
func WithFs(fsys afero.Fs) Option { return func(m *Manager) { m.fs = fsys } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithClock overrides the current time.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// New creates a Manager for the agents that have a workspace directory
// under home.
func New(home string, agents []config.AgentConfig, allowed []string, opts ...Option) *Manager {
	m := &Manager{
		fs:      afero.NewOsFs(),
		home:    home,
		allowed: allowed,
		logger:  slog.Default(),
		now:     time.Now,
		journal: make(map[fileKey]time.Time),
	}
	for _, a := range agents {
		if a.Workspace != "" {
			m.agents = append(m.agents, a)
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) agent(name string) (config.AgentConfig, bool) {
	for _, a := range m.agents {
		if a.Name == name {
			return a, true
		}
	}
	return config.AgentConfig{}, false
}

func (m *Manager) dir(a config.AgentConfig) string {
	return filepath.Join(m.home, a.Workspace)
}

// resolve checks agent and file against the roster and allow-list.
func (m *Manager) resolve(agentName, file string) (string, error) {
	a, ok := m.agent(agentName)
	if !ok {
		return "", fmt.Errorf("agent %q: %w", agentName, ErrNotFound)
	}
	if !slices.Contains(m.allowed, file) {
		return "", fmt.Errorf("%q: %w", file, ErrForbidden)
	}
	return filepath.Join(m.dir(a), file), nil
}

// List returns every workspace with the allow-listed files that exist.
func (m *Manager) List() ([]Workspace, error) {
	out := make([]Workspace, 0, len(m.agents))
	for _, a := range m.agents {
		ws := Workspace{
			Agent: a.Name,
			Name:  a.DisplayName,
			Emoji: a.Emoji,
			Path:  m.dir(a),
			Files: []File{},
		}
		for _, name := range m.allowed {
			fi, err := m.fs.Stat(filepath.Join(ws.Path, name))
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("stat %s/%s: %w", a.Name, name, err)
			}
			ws.Files = append(ws.Files, File{Name: name, Size: fi.Size(), Modified: fi.ModTime().UTC()})
		}
		out = append(out, ws)
	}
	return out, nil
}

// Read returns the content of an allow-listed file. With render set, HTML
// holds the markdown rendered by goldmark.
func (m *Manager) Read(agentName, file string, render bool) (Content, error) {
	path, err := m.resolve(agentName, file)
	if err != nil {
		return Content{}, err
	}
	fi, err := m.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Content{}, fmt.Errorf("%s/%s: %w", agentName, file, ErrNotFound)
	}
	if err != nil {
		return Content{}, fmt.Errorf("stat %s: %w", path, err)
	}
	data, err := afero.ReadFile(m.fs, path)
	if err != nil {
		return Content{}, fmt.Errorf("read %s: %w", path, err)
	}
	c := Content{
		Agent:    agentName,
		Filename: file,
		Content:  string(data),
		Modified: fi.ModTime().UTC(),
	}
	if render {
		html, err := markdown.ToHTML(c.Content)
		if err != nil {
			return Content{}, fmt.Errorf("render %s: %w", path, err)
		}
		c.HTML = html
	}
	return c, nil
}

// Save overwrites an allow-listed file. The workspace directory must exist.
func (m *Manager) Save(agentName, file, content string) (File, error) {
	path, err := m.resolve(agentName, file)
	if err != nil {
		return File{}, err
	}
	if _, err := m.fs.Stat(filepath.Dir(path)); errors.Is(err, fs.ErrNotExist) {
		return File{}, fmt.Errorf("workspace %s: %w", agentName, ErrNotFound)
	}
	if err := afero.WriteFile(m.fs, path, []byte(content), 0o644); err != nil {
		return File{}, fmt.Errorf("write %s: %w", path, err)
	}
	fi, err := m.fs.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	m.record(agentName, file, m.now())
	return File{Name: file, Size: fi.Size(), Modified: fi.ModTime().UTC()}, nil
}

func (m *Manager) record(agentName, file string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := fileKey{agentName, file}
	if at.After(m.journal[k]) {
		m.journal[k] = at.UTC()
	}
}

// ChangedSince lists files modified after since, by modification time or
// by a change the watcher or Save observed. Results are sorted by agent,
// then file.
func (m *Manager) ChangedSince(since time.Time) ([]Change, error) {
	latest := map[fileKey]time.Time{}
	for _, a := range m.agents {
		for _, name := range m.allowed {
			fi, err := m.fs.Stat(filepath.Join(m.dir(a), name))
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("stat %s/%s: %w", a.Name, name, err)
			}
			if mt := fi.ModTime().UTC(); mt.After(since) {
				latest[fileKey{a.Name, name}] = mt
			}
		}
	}
	m.mu.Lock()
	for k, at := range m.journal {
		if at.After(since) && at.After(latest[k]) {
			latest[k] = at
		}
	}
	m.mu.Unlock()

	out := make([]Change, 0, len(latest))
	for k, at := range latest {
		out = append(out, Change{Agent: k.agent, Filename: k.name, Modified: at})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Agent != out[j].Agent {
			return out[i].Agent < out[j].Agent
		}
		return out[i].Filename < out[j].Filename
	})
	return out, nil
}

// Watch records changes to workspace files made outside Save until ctx is
// done. Directories that do not exist are skipped.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("workspace watcher: %w", err)
	}
	defer w.Close()

	for _, a := range m.agents {
		if err := w.Add(m.dir(a)); err != nil {
			m.logger.Warn("workspace: not watching", slog.String("agent", a.Name), slog.Any("err", err))
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			m.handleEvent(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("workspace: watcher error", slog.Any("err", err))
		}
	}
}

func (m *Manager) handleEvent(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	dir, name := filepath.Split(filepath.Clean(ev.Name))
	if !slices.Contains(m.allowed, name) {
		return
	}
	dir = filepath.Clean(dir)
	for _, a := range m.agents {
		if filepath.Clean(m.dir(a)) == dir {
			m.record(a.Name, name, m.now())
			m.logger.Debug("workspace: file changed", slog.String("agent", a.Name), slog.String("file", name))
			return
		}
	}
}
