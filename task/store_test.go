package task

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/avntro/mission-control/activity"
	"github.com/avntro/mission-control/db"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "mc-task.db"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewSQLiteStore(conn)
}

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)

	task := &Task{
		Title:         "Test task",
		Description:   "Do something",
		Priority:      PriorityHigh,
		AssignedAgent: "dev",
		Model:         "claude-sonnet-4-5",
	}
	id, err := store.Create(task)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(id) != 8 {
		t.Errorf("id = %q, want 8 chars", id)
	}
	if task.ID != id {
		t.Errorf("task.ID = %q, want %q", task.ID, id)
	}

	got, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != task.Title {
		t.Errorf("Title = %q, want %q", got.Title, task.Title)
	}
	if got.Status != StatusTodo {
		t.Errorf("Status = %q, want todo", got.Status)
	}
	if got.IsLive {
		t.Error("persisted task reported as live")
	}
	if got.CompletedAt != nil || got.Duration != nil {
		t.Errorf("fresh task has completion fields: %v %v", got.CompletedAt, got.Duration)
	}
}

func TestSQLiteStore_Create_PresetID(t *testing.T) {
	store := newTestStore(t)
	id, err := store.Create(&Task{ID: "run12345", Title: "webhook run", Status: StatusInProgress})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != "run12345" {
		t.Errorf("id = %q, want preset", id)
	}
}

func TestSQLiteStore_Create_SkipHistory(t *testing.T) {
	store := newTestStore(t)
	recorded, _ := store.Create(&Task{Title: "manual"})
	silent, err := store.Create(&Task{ID: "run54321", Title: "webhook run", SkipHistory: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	d, _ := store.Detail(recorded)
	if len(d.History) != 1 || d.History[0].Action != activity.ActionTaskCreated {
		t.Errorf("history = %+v, want one task_created", d.History)
	}
	d, _ = store.Detail(silent)
	if len(d.History) != 0 {
		t.Errorf("history = %+v, want none", d.History)
	}
}

func TestSQLiteStore_Create_RejectsLive(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Create(&Task{Title: "scanner output", IsLive: true})
	if !errors.Is(err, ErrLiveTask) {
		t.Fatalf("err = %v, want ErrLiveTask", err)
	}
}

func TestSQLiteStore_Get_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_Update(t *testing.T) {
	store := newTestStore(t)
	id, err := store.Create(&Task{Title: "orig", Description: "desc"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	title := "updated"
	status := StatusInProgress
	got, err := store.Update(id, Patch{Title: &title, Status: &status})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != "updated" || got.Status != StatusInProgress {
		t.Errorf("got %q/%q", got.Title, got.Status)
	}
	if got.Description != "desc" {
		t.Errorf("Description = %q, untouched field changed", got.Description)
	}
	if got.CompletedAt != nil {
		t.Error("in_progress task should not be completed")
	}
}

func TestSQLiteStore_Update_DoneStampsCompletion(t *testing.T) {
	store := newTestStore(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return start }
	id, err := store.Create(&Task{Title: "finish me"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	store.now = func() time.Time { return start.Add(90 * time.Second) }
	done := StatusDone
	got, err := store.Update(id, Patch{Status: &done})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(start.Add(90*time.Second)) {
		t.Errorf("CompletedAt = %v", got.CompletedAt)
	}
	if got.Duration == nil || *got.Duration != 90 {
		t.Errorf("Duration = %v, want 90", got.Duration)
	}

	stored, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Duration == nil || *stored.Duration != 90 {
		t.Errorf("stored Duration = %v, want 90", stored.Duration)
	}
}

func TestSQLiteStore_Update_ExplicitDuration(t *testing.T) {
	store := newTestStore(t)
	id, _ := store.Create(&Task{Title: "run", Status: StatusInProgress})
	done := StatusDone
	d := 12.5
	got, err := store.Update(id, Patch{Status: &done, Duration: &d})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Duration == nil || *got.Duration != 12.5 {
		t.Errorf("Duration = %v, want 12.5", got.Duration)
	}
}

func TestSQLiteStore_Update_NotFound(t *testing.T) {
	store := newTestStore(t)
	title := "x"
	_, err := store.Update("nonexistent", Patch{Title: &title})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_Update_RecordsStatusChange(t *testing.T) {
	store := newTestStore(t)
	id, _ := store.Create(&Task{Title: "tracked", AssignedAgent: "trading"})

	review := StatusReview
	if _, err := store.Update(id, Patch{Status: &review}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	// Same status again is not a transition.
	if _, err := store.Update(id, Patch{Status: &review}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	detail, err := store.Detail(id)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if len(detail.History) != 2 {
		t.Fatalf("History len = %d, want 2 (created + one change)", len(detail.History))
	}
	if detail.History[0].Action != activity.ActionTaskCreated {
		t.Errorf("History[0] = %q", detail.History[0].Action)
	}
	change := detail.History[1]
	if change.Action != activity.ActionStatusChange {
		t.Errorf("History[1] = %q", change.Action)
	}
	if change.Details != "todo → review: tracked" {
		t.Errorf("Details = %q", change.Details)
	}
	if change.Agent != "trading" {
		t.Errorf("Agent = %q", change.Agent)
	}
}

func TestSQLiteStore_Update_SkipHistory(t *testing.T) {
	store := newTestStore(t)
	id, _ := store.Create(&Task{Title: "quiet"})
	done := StatusDone
	if _, err := store.Update(id, Patch{Status: &done, SkipHistory: true}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	detail, _ := store.Detail(id)
	if len(detail.History) != 1 {
		t.Errorf("History len = %d, want 1", len(detail.History))
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := newTestStore(t)
	id, _ := store.Create(&Task{Title: "to delete"})
	if err := store.AddComment(&Comment{TaskID: id, Agent: "dev", Content: "note"}); err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	if err := store.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: err = %v", err)
	}
	comments, err := store.Comments(id)
	if err != nil {
		t.Fatalf("Comments: %v", err)
	}
	if len(comments) != 0 {
		t.Errorf("comments survived delete: %d", len(comments))
	}
	history, err := activity.NewSQLiteLog(store.db).ForTask(id)
	if err != nil {
		t.Fatalf("ForTask: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history survived delete: %d", len(history))
	}
}

func TestSQLiteStore_Delete_NotFound(t *testing.T) {
	store := newTestStore(t)
	if err := store.Delete("nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_List(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seed := []Task{
		{Title: "low-old", Priority: PriorityLow, AssignedAgent: "dev"},
		{Title: "high", Priority: PriorityHigh, AssignedAgent: "trading"},
		{Title: "low-new", Priority: PriorityLow, AssignedAgent: "dev"},
		{Title: "critical", Priority: PriorityCritical, Status: StatusReview, AssignedAgent: "dev"},
	}
	for i := range seed {
		at := base.Add(time.Duration(i) * time.Minute)
		store.now = func() time.Time { return at }
		if _, err := store.Create(&seed[i]); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	all, err := store.List(Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"critical", "high", "low-new", "low-old"}
	if len(all) != len(want) {
		t.Fatalf("List len = %d, want %d", len(all), len(want))
	}
	for i, w := range want {
		if all[i].Title != w {
			t.Errorf("List[%d] = %q, want %q", i, all[i].Title, w)
		}
	}

	byAgent, _ := store.List(Filter{AssignedAgent: "dev"})
	if len(byAgent) != 3 {
		t.Errorf("agent filter len = %d, want 3", len(byAgent))
	}

	review := StatusReview
	byStatus, _ := store.List(Filter{Status: &review})
	if len(byStatus) != 1 || byStatus[0].Title != "critical" {
		t.Errorf("status filter = %+v", byStatus)
	}

	paged, _ := store.List(Filter{Limit: 2, Offset: 1})
	if len(paged) != 2 || paged[0].Title != "high" {
		t.Errorf("paged = %d items, first %q", len(paged), paged[0].Title)
	}
}

func TestSQLiteStore_AddComment(t *testing.T) {
	store := newTestStore(t)
	id, _ := store.Create(&Task{Title: "discuss"})

	long := make([]rune, 150)
	for i := range long {
		long[i] = 'x'
	}
	if err := store.AddComment(&Comment{TaskID: id, Agent: "main", Content: string(long)}); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if err := store.AddComment(&Comment{TaskID: id, Agent: "main", Content: "stack trace", Type: "error"}); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if err := store.AddComment(&Comment{TaskID: id, Agent: "main", Content: "run output", Type: "log", SkipHistory: true}); err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	detail, err := store.Detail(id)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if len(detail.Comments) != 3 {
		t.Fatalf("Comments len = %d", len(detail.Comments))
	}
	if detail.Comments[0].Type != "comment" || detail.Comments[1].Type != "error" {
		t.Errorf("types = %q, %q", detail.Comments[0].Type, detail.Comments[1].Type)
	}
	var added []activity.Event
	for _, e := range detail.History {
		if e.Action == activity.ActionCommentAdded {
			added = append(added, e)
		}
	}
	// Every comment type is recorded; run notes opt out.
	if len(added) != 2 {
		t.Fatalf("comment_added events = %d, want 2", len(added))
	}
	if added[1].Details != "stack trace" {
		t.Errorf("second event details = %q", added[1].Details)
	}
	if len([]rune(added[0].Details)) != 100 {
		t.Errorf("details not truncated: %d runes", len([]rune(added[0].Details)))
	}
}

func TestSQLiteStore_AddComment_UnknownTask(t *testing.T) {
	store := newTestStore(t)
	err := store.AddComment(&Comment{TaskID: "ghost", Content: "hi"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_Detail_EmptyCollections(t *testing.T) {
	store := newTestStore(t)
	id, _ := store.Create(&Task{Title: "bare"})
	detail, err := store.Detail(id)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if detail.Comments == nil {
		t.Error("Comments should be empty, not nil")
	}
}
