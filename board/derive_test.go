package board

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avntro/mission-control/agent"
	"github.com/avntro/mission-control/task"
)

func ptr[T any](v T) *T { return &v }

func TestComputeDuration_RunningIsMonotonic(t *testing.T) {
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tk := task.Task{Status: task.StatusInProgress, CreatedAt: created}

	last := -1.0
	for i := 0; i < 30; i++ {
		secs, ok := ComputeDuration(tk, created.Add(time.Duration(i)*time.Second))
		require.True(t, ok)
		assert.GreaterOrEqual(t, secs, last)
		last = secs
	}
	assert.Equal(t, 29.0, last)
}

func TestComputeDuration_ClockSkewFloorsAtZero(t *testing.T) {
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	secs, ok := ComputeDuration(task.Task{Status: task.StatusInProgress, CreatedAt: created}, created.Add(-time.Minute))
	assert.True(t, ok)
	assert.Zero(t, secs)
}

func TestComputeDuration_StoredAfterLeavingInProgress(t *testing.T) {
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tk := task.Task{Status: task.StatusInProgress, CreatedAt: created, Duration: ptr(42.5)}
	running, _ := ComputeDuration(tk, created.Add(10*time.Second))
	assert.Equal(t, 10.0, running)

	for _, s := range []task.Status{task.StatusDone, task.StatusReview, task.StatusTodo} {
		tk.Status = s
		secs, ok := ComputeDuration(tk, created.Add(time.Hour))
		assert.True(t, ok)
		assert.Equal(t, 42.5, secs, "status %s", s)
	}
}

func TestComputeDuration_Absent(t *testing.T) {
	_, ok := ComputeDuration(task.Task{Status: task.StatusDone}, time.Now())
	assert.False(t, ok)
	_, ok = ComputeDuration(task.Task{Status: task.StatusDone, Duration: ptr(0.0)}, time.Now())
	assert.False(t, ok, "zero duration renders empty")
	_, ok = ComputeDuration(task.Task{Status: task.StatusInProgress}, time.Now())
	assert.False(t, ok, "running without created_at")
}

func TestContextPercent_Overflow(t *testing.T) {
	pct := ContextPercent(210000, 200000)
	assert.Equal(t, 105, pct)
	assert.Equal(t, 100, BarWidth(pct))
	assert.Equal(t, BandRed, BandFor(pct))
}

func TestContextPercent_Edges(t *testing.T) {
	assert.Zero(t, ContextPercent(1000, 0))
	assert.Zero(t, ContextPercent(0, 200000))
	assert.Equal(t, 50, ContextPercent(100000, 200000))
	assert.Equal(t, 0, BarWidth(-5))
	assert.Equal(t, 64, BarWidth(64))
}

func TestBandFor(t *testing.T) {
	cases := map[int]Band{0: BandGreen, 49: BandGreen, 50: BandYellow, 80: BandYellow, 81: BandRed, 250: BandRed}
	for pct, want := range cases {
		assert.Equal(t, want, BandFor(pct), "pct %d", pct)
	}
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45.9))
	assert.Equal(t, "3m 20s", FormatDuration(200))
	assert.Equal(t, "1h 5m", FormatDuration(3900))

	assert.Equal(t, "", FormatCost(0))
	assert.Equal(t, "$0.0123", FormatCost(0.0123))
	assert.Equal(t, "$4.50", FormatCost(4.5))

	assert.Equal(t, "", FormatTokens(0))
	assert.Equal(t, "999", FormatTokens(999))
	assert.Equal(t, "12.3k", FormatTokens(12345))
	assert.Equal(t, "1.5M", FormatTokens(1_500_000))

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "", TimeAgo(time.Time{}, now))
	assert.Equal(t, "3 minutes ago", TimeAgo(now.Add(-3*time.Minute), now))
}

func TestRoster_DanglingReference(t *testing.T) {
	r := NewRoster([]agent.Agent{{Name: "trading", DisplayName: "Trading / AA", Emoji: "📈"}})

	a, ok := r.Lookup("trading")
	require.True(t, ok)
	assert.Equal(t, "Trading / AA", a.DisplayName)
	assert.Equal(t, "📈 Trading / AA", r.Label("trading"))

	_, ok = r.Lookup("retired-bot")
	assert.False(t, ok)
	assert.Equal(t, Unassigned, r.Label("retired-bot"))
	assert.Equal(t, Unassigned, r.Label(""))
}

func TestNewCard(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewRoster([]agent.Agent{{Name: "dev", DisplayName: "Dev", Emoji: "💻"}})
	done := task.Task{
		ID: "t1", Title: "ship", Status: task.StatusDone, AssignedAgent: "dev",
		CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-10 * time.Minute),
		Duration: ptr(3000.0), Cost: 0.25, Tokens: 40000,
	}
	c := NewCard(done, r, now)
	assert.Equal(t, "💻 Dev", c.Agent)
	assert.Equal(t, "50m 0s", c.Duration)
	assert.Equal(t, "$0.2500", c.Cost)
	assert.Equal(t, "40k", c.Tokens)
	assert.Equal(t, "10 minutes ago", c.Completed, "completed falls back to updated_at")

	manual := NewCard(task.Task{ID: "t2", Status: task.StatusTodo, AssignedAgent: "ghost"}, r, now)
	assert.Equal(t, Unassigned, manual.Agent)
	assert.Empty(t, manual.Cost)
	assert.Empty(t, manual.Tokens)
	assert.Empty(t, manual.Duration)
}
