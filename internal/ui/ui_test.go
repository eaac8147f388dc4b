package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/avntro/mission-control/agent"
	"github.com/avntro/mission-control/board"
	"github.com/avntro/mission-control/poller"
	"github.com/avntro/mission-control/task"
)

func testDocument(t *testing.T) *poller.Document {
	t.Helper()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	d := board.Data{
		Tasks: []task.Task{
			{ID: "t1", Title: "Fix login", Status: task.StatusTodo, AssignedAgent: "dev", CreatedAt: now},
			{ID: "t2", Title: "Deploy", Status: task.StatusTodo, AssignedAgent: "dev", CreatedAt: now},
			{ID: "t3", Title: "Review PR", Status: task.StatusReview, AssignedAgent: "dev", CreatedAt: now},
		},
		Live: []task.Task{
			{ID: "live1", Title: "Backtest", Status: task.StatusInProgress, AssignedAgent: "trading", CreatedAt: now.Add(-time.Minute), IsLive: true},
		},
		Agents: []agent.Agent{
			{Name: "dev", DisplayName: "Dev", Emoji: "💻", Status: agent.StatusBusy},
			{Name: "trading", DisplayName: "Trading", Emoji: "📈", Status: agent.StatusIdle},
		},
		Stats: map[string]agent.Stats{
			"dev": {Active: true, MainSessionTokens: 210_000, ContextLimit: 200_000},
		},
	}
	doc := poller.NewDocument()
	snap := board.Reconcile(d, now, board.View{LaneCap: 1})
	if err := doc.Apply(board.Diff(board.Snapshot{}, snap)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return doc
}

func TestBoard_RendersLanesAndAgents(t *testing.T) {
	out := Board(testDocument(t), 160)

	for _, want := range []string{"To Do (1)", "In Progress (1)", "Review (1)", "Done (0)", "Fix login", "Backtest", "+1 more", "Agents", "105%"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Deploy") {
		t.Errorf("collapsed lane should hide the second card:\n%s", out)
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		fill, width int
		want        string
	}{
		{0, 4, "░░░░"},
		{50, 4, "██░░"},
		{100, 4, "████"},
		{150, 4, "████"},
	}
	for _, tt := range tests {
		if got := Bar(tt.fill, tt.width); got != tt.want {
			t.Errorf("Bar(%d, %d) = %q, want %q", tt.fill, tt.width, got, tt.want)
		}
	}
}

func TestBandStyle(t *testing.T) {
	if BandStyle(string(board.BandRed)).GetForeground() != ColorError {
		t.Error("red band should use the error color")
	}
	if BandStyle(string(board.BandGreen)).GetForeground() != ColorSuccess {
		t.Error("green band should use the success color")
	}
}
