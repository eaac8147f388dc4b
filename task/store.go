package task

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avntro/mission-control/activity"
	"github.com/avntro/mission-control/db"
)

const taskColumns = `id, title, description, assigned_agent, priority, status, model, tokens, cost,
	created_at, updated_at, completed_at, duration`

// SQLiteStore persists tasks and their comments in SQLite. Status
// transitions are recorded in the activity feed within the same transaction.
type SQLiteStore struct {
	db      *sql.DB
	history activity.Log
	now     func() time.Time
}

// NewSQLiteStore wraps an open database (see db.Open).
func NewSQLiteStore(conn *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:      conn,
		history: activity.NewSQLiteLog(conn),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ShortID returns the 8-character identifier used for tasks and comments.
func ShortID() string {
	return uuid.NewString()[:8]
}

// Create persists a new task and sets its ID, CreatedAt, and UpdatedAt.
func (s *SQLiteStore) Create(t *Task) (string, error) {
	if t.IsLive {
		return "", ErrLiveTask
	}
	if t.ID == "" {
		t.ID = ShortID()
	}
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	if !t.Status.Valid() {
		t.Status = DefaultPersistedLane
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Description, t.AssignedAgent, string(t.Priority), string(t.Status),
		t.Model, t.Tokens, t.Cost,
		t.CreatedAt, t.UpdatedAt, nullTime(t.CompletedAt), nullFloat(t.Duration),
	)
	if err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}
	if !t.SkipHistory {
		err = activity.AppendTx(tx, &activity.Event{
			Agent:     t.AssignedAgent,
			Action:    activity.ActionTaskCreated,
			Details:   "Created: " + t.Title,
			TaskID:    t.ID,
			Success:   true,
			CreatedAt: now,
		})
		if err != nil {
			return "", err
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return t.ID, nil
}

// Get retrieves a task by ID.
func (s *SQLiteStore) Get(id string) (*Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, err
}

// Detail retrieves a task with its comments and history, both oldest first.
func (s *SQLiteStore) Detail(id string) (*Task, error) {
	t, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	t.Comments, err = s.Comments(id)
	if err != nil {
		return nil, err
	}
	t.History, err = s.history.ForTask(id)
	if err != nil {
		return nil, err
	}
	if t.Comments == nil {
		t.Comments = []Comment{}
	}
	if t.History == nil {
		t.History = []activity.Event{}
	}
	return t, nil
}

// Update applies p. Moving into done stamps completed_at and the elapsed
// duration; any status change is recorded as a status_change event.
func (s *SQLiteStore) Update(id string, p Patch) (*Task, error) {
	old, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if p.Empty() {
		return old, nil
	}
	t := *old
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.AssignedAgent != nil {
		t.AssignedAgent = *p.AssignedAgent
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Tokens != nil {
		t.Tokens = *p.Tokens
	}
	if p.Cost != nil {
		t.Cost = *p.Cost
	}
	if p.Model != nil {
		t.Model = *p.Model
	}
	now := s.now()
	t.UpdatedAt = now
	if p.Status != nil {
		t.Status = *p.Status
		if t.Status == StatusDone && old.Status != StatusDone {
			completed := now
			t.CompletedAt = &completed
			elapsed := now.Sub(old.CreatedAt).Seconds()
			t.Duration = &elapsed
		}
	}
	if p.Duration != nil {
		t.Duration = p.Duration
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		UPDATE tasks SET
			title=?, description=?, assigned_agent=?, priority=?, status=?, model=?, tokens=?, cost=?,
			updated_at=?, completed_at=?, duration=?
		WHERE id=?`,
		t.Title, t.Description, t.AssignedAgent, string(t.Priority), string(t.Status), t.Model, t.Tokens, t.Cost,
		t.UpdatedAt, nullTime(t.CompletedAt), nullFloat(t.Duration),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if t.Status != old.Status && !p.SkipHistory {
		err = activity.AppendTx(tx, &activity.Event{
			Agent:     old.AssignedAgent,
			Action:    activity.ActionStatusChange,
			Details:   fmt.Sprintf("%s → %s: %s", old.Status, t.Status, old.Title),
			TaskID:    id,
			Success:   true,
			CreatedAt: now,
		})
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &t, nil
}

// List returns tasks matching the filter ordered by priority, newest first
// within a priority.
func (s *SQLiteStore) List(filter Filter) ([]*Task, error) {
	q := strings.Builder{}
	q.WriteString("SELECT " + taskColumns + " FROM tasks WHERE 1=1")
	args := []any{}

	if filter.Status != nil {
		q.WriteString(" AND status=?")
		args = append(args, string(*filter.Status))
	}
	if filter.AssignedAgent != "" {
		q.WriteString(" AND assigned_agent=?")
		args = append(args, filter.AssignedAgent)
	}
	q.WriteString(` ORDER BY CASE priority
		WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END,
		created_at DESC`)
	if filter.Limit > 0 {
		q.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
		if filter.Offset > 0 {
			q.WriteString(fmt.Sprintf(" OFFSET %d", filter.Offset))
		}
	}

	rows, err := s.db.Query(q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Delete removes a task by ID together with its comments and history.
func (s *SQLiteStore) Delete(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec("DELETE FROM tasks WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if _, err := tx.Exec("DELETE FROM comments WHERE task_id=?", id); err != nil {
		return fmt.Errorf("delete comments: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM activity_feed WHERE task_id=?", id); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return tx.Commit()
}

// AddComment appends c to its task and records a comment_added event unless
// c.SkipHistory is set.
func (s *SQLiteStore) AddComment(c *Comment) error {
	if _, err := s.Get(c.TaskID); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = ShortID()
	}
	if c.Type == "" {
		c.Type = "comment"
	}
	c.CreatedAt = s.now()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO comments (id, task_id, agent, content, type, created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.TaskID, c.Agent, c.Content, c.Type, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	if !c.SkipHistory {
		err = activity.AppendTx(tx, &activity.Event{
			Agent:     c.Agent,
			Action:    activity.ActionCommentAdded,
			Details:   truncate(c.Content, 100),
			TaskID:    c.TaskID,
			Success:   true,
			CreatedAt: c.CreatedAt,
		})
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Comments returns a task's comments, oldest first.
func (s *SQLiteStore) Comments(taskID string) ([]Comment, error) {
	rows, err := s.db.Query(`
		SELECT id, task_id, agent, content, type, created_at
		FROM comments WHERE task_id=? ORDER BY created_at ASC, rowid ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()
	var out []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Agent, &c.Content, &c.Type, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanTask(s db.Scanner) (*Task, error) {
	var t Task
	var status, priority string
	var completedAt sql.NullTime
	var duration sql.NullFloat64

	err := s.Scan(
		&t.ID, &t.Title, &t.Description, &t.AssignedAgent, &priority, &status,
		&t.Model, &t.Tokens, &t.Cost,
		&t.CreatedAt, &t.UpdatedAt, &completedAt, &duration,
	)
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	t.Priority = Priority(priority)
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	if duration.Valid {
		d := duration.Float64
		t.Duration = &d
	}
	return &t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
