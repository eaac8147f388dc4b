package workspace

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/avntro/mission-control/config"
	"github.com/avntro/mission-control/internal/logging"
)

var allowed = []string{"SOUL.md", "MEMORY.md"}

func newTestManager(t *testing.T) (*Manager, afero.Fs, *time.Time) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/oc/workspace-dev/SOUL.md", []byte("# Dev\n\nships code"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fsys, "/oc/workspace-dev/secrets.env", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := fsys.MkdirAll("/oc/workspace-voice", 0o755); err != nil {
		t.Fatal(err)
	}
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	agents := []config.AgentConfig{
		{Name: "dev", DisplayName: "Dev", Emoji: "💻", Workspace: "workspace-dev"},
		{Name: "voice", DisplayName: "Voice", Workspace: "workspace-voice"},
		{Name: "nodir"},
	}
	m := New("/oc", agents, allowed,
		WithFs(fsys),
		WithLogger(logging.Discard()),
		WithClock(func() time.Time { return clock }),
	)
	return m, fsys, &clock
}

func TestList(t *testing.T) {
	m, _, _ := newTestManager(t)
	ws, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ws) != 2 {
		t.Fatalf("expected 2 workspaces, got %d", len(ws))
	}
	if ws[0].Agent != "dev" || len(ws[0].Files) != 1 || ws[0].Files[0].Name != "SOUL.md" {
		t.Errorf("unexpected dev workspace: %+v", ws[0])
	}
	if ws[1].Files == nil || len(ws[1].Files) != 0 {
		t.Errorf("expected empty non-nil files for voice, got %#v", ws[1].Files)
	}
}

func TestRead(t *testing.T) {
	m, _, _ := newTestManager(t)

	c, err := m.Read("dev", "SOUL.md", false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if c.Content != "# Dev\n\nships code" || c.HTML != "" {
		t.Errorf("unexpected content: %+v", c)
	}

	c, err = m.Read("dev", "SOUL.md", true)
	if err != nil {
		t.Fatalf("Read render: %v", err)
	}
	if !strings.Contains(c.HTML, "<h1>Dev</h1>") {
		t.Errorf("expected rendered heading, got %q", c.HTML)
	}
}

func TestRead_Errors(t *testing.T) {
	m, _, _ := newTestManager(t)

	cases := []struct {
		agent, file string
		want        error
	}{
		{"ghost", "SOUL.md", ErrNotFound},
		{"dev", "secrets.env", ErrForbidden},
		{"dev", "../workspace-voice/SOUL.md", ErrForbidden},
		{"dev", "MEMORY.md", ErrNotFound},
	}
	for _, tc := range cases {
		if _, err := m.Read(tc.agent, tc.file, false); !errors.Is(err, tc.want) {
			t.Errorf("Read(%s, %s): expected %v, got %v", tc.agent, tc.file, tc.want, err)
		}
	}
}

func TestSave(t *testing.T) {
	m, fsys, _ := newTestManager(t)

	f, err := m.Save("voice", "MEMORY.md", "remember this")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if f.Size != int64(len("remember this")) {
		t.Errorf("unexpected size %d", f.Size)
	}
	data, _ := afero.ReadFile(fsys, "/oc/workspace-voice/MEMORY.md")
	if string(data) != "remember this" {
		t.Errorf("file not written: %q", data)
	}

	if _, err := m.Save("dev", "secrets.env", "x"); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestChangedSince_Journal(t *testing.T) {
	m, _, clock := newTestManager(t)
	// Far-future cutoff so only journal entries can match.
	since := time.Now().Add(24 * time.Hour)
	*clock = since.Add(time.Minute)

	if _, err := m.Save("dev", "SOUL.md", "updated"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	m.handleEvent(fsnotify.Event{Name: "/oc/workspace-voice/MEMORY.md", Op: fsnotify.Write})
	m.handleEvent(fsnotify.Event{Name: "/oc/workspace-voice/notes.txt", Op: fsnotify.Write})
	m.handleEvent(fsnotify.Event{Name: "/oc/workspace-dev/MEMORY.md", Op: fsnotify.Chmod})

	changes, err := m.ChangedSince(since)
	if err != nil {
		t.Fatalf("ChangedSince: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %+v", changes)
	}
	if changes[0].Agent != "dev" || changes[0].Filename != "SOUL.md" {
		t.Errorf("unexpected first change: %+v", changes[0])
	}
	if changes[1].Agent != "voice" || changes[1].Filename != "MEMORY.md" {
		t.Errorf("unexpected second change: %+v", changes[1])
	}

	none, err := m.ChangedSince(clock.Add(time.Hour))
	if err != nil {
		t.Fatalf("ChangedSince: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no changes, got %+v", none)
	}
}

func TestChangedSince_ModTime(t *testing.T) {
	m, _, _ := newTestManager(t)
	changes, err := m.ChangedSince(time.Time{})
	if err != nil {
		t.Fatalf("ChangedSince: %v", err)
	}
	if len(changes) != 1 || changes[0].Filename != "SOUL.md" {
		t.Errorf("expected SOUL.md by mtime, got %+v", changes)
	}
}
