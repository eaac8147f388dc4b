package activity

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avntro/mission-control/db"
)

// SQLiteLog persists events in the activity_feed table.
type SQLiteLog struct {
	db *sql.DB
}

// NewSQLiteLog wraps an open database (see db.Open).
func NewSQLiteLog(conn *sql.DB) *SQLiteLog {
	return &SQLiteLog{db: conn}
}

// Append inserts e.
func (l *SQLiteLog) Append(e *Event) error {
	return appendEvent(l.db, e)
}

// Execer is satisfied by *sql.DB and *sql.Tx so other stores can record
// events inside their own transactions.
type Execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// AppendTx records e through ex, typically a transaction owned by the caller.
func AppendTx(ex Execer, e *Event) error {
	return appendEvent(ex, e)
}

func appendEvent(ex Execer, e *Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	success := 0
	if e.Success {
		success = 1
	}
	var duration any
	if e.Duration != nil {
		duration = *e.Duration
	}
	_, err := ex.Exec(`
		INSERT INTO activity_feed (id, agent, action, details, task_id, success, duration, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, e.Agent, string(e.Action), e.Details, e.TaskID, success, duration, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// List returns matching events, most recent first.
func (l *SQLiteLog) List(filter Filter) ([]Event, error) {
	q := strings.Builder{}
	q.WriteString("SELECT id, agent, action, details, task_id, success, duration, created_at FROM activity_feed WHERE 1=1")
	args := []any{}
	if filter.Agent != "" {
		q.WriteString(" AND agent=?")
		args = append(args, filter.Agent)
	}
	if filter.Action != "" {
		q.WriteString(" AND action=?")
		args = append(args, string(filter.Action))
	}
	if filter.TaskID != "" {
		q.WriteString(" AND task_id=?")
		args = append(args, filter.TaskID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	q.WriteString(" ORDER BY created_at DESC, rowid DESC LIMIT ?")
	args = append(args, limit)
	return l.query(q.String(), args...)
}

// ForTask returns a task's history, oldest first.
func (l *SQLiteLog) ForTask(taskID string) ([]Event, error) {
	return l.query(`
		SELECT id, agent, action, details, task_id, success, duration, created_at
		FROM activity_feed WHERE task_id=? ORDER BY created_at ASC, rowid ASC`, taskID)
}

// DeleteForTask removes a task's history.
func (l *SQLiteLog) DeleteForTask(taskID string) error {
	if _, err := l.db.Exec("DELETE FROM activity_feed WHERE task_id=?", taskID); err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	return nil
}

func (l *SQLiteLog) query(q string, args ...any) ([]Event, error) {
	rows, err := l.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEvent(s db.Scanner) (Event, error) {
	var e Event
	var action string
	var success int
	var duration sql.NullFloat64
	if err := s.Scan(&e.ID, &e.Agent, &action, &e.Details, &e.TaskID, &success, &duration, &e.CreatedAt); err != nil {
		return Event{}, err
	}
	e.Action = Action(action)
	e.Success = success != 0
	if duration.Valid {
		d := duration.Float64
		e.Duration = &d
	}
	return e, nil
}
