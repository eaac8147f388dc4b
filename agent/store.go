package agent

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avntro/mission-control/db"
)

// SQLiteStore persists the roster in the agents table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database (see db.Open).
func NewSQLiteStore(conn *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: conn}
}

// Seed inserts agents only when the table is empty, so status written by a
// previous run survives restarts.
func (s *SQLiteStore) Seed(agents []Agent) error {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM agents").Scan(&n); err != nil {
		return fmt.Errorf("count agents: %w", err)
	}
	if n > 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, a := range agents {
		status := a.Status
		if status == "" {
			status = StatusIdle
		}
		_, err := tx.Exec(`
			INSERT INTO agents (name, display_name, model, status, current_task, emoji)
			VALUES (?,?,?,?,?,?)`,
			a.Name, a.DisplayName, a.Model, string(status), a.CurrentTask, a.Emoji,
		)
		if err != nil {
			return fmt.Errorf("seed agent %s: %w", a.Name, err)
		}
	}
	return tx.Commit()
}

// List returns the roster ordered by name.
func (s *SQLiteStore) List() ([]Agent, error) {
	rows, err := s.db.Query(`
		SELECT name, display_name, model, status, last_activity, current_task, emoji
		FROM agents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Get returns one agent by name.
func (s *SQLiteStore) Get(name string) (*Agent, error) {
	row := s.db.QueryRow(`
		SELECT name, display_name, model, status, last_activity, current_task, emoji
		FROM agents WHERE name=?`, name)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", name, ErrNotFound)
	}
	return a, err
}

// Update applies u to the named agent.
func (s *SQLiteStore) Update(name string, u Update) (*Agent, error) {
	if _, err := s.Get(name); err != nil {
		return nil, err
	}
	sets := []string{}
	args := []any{}
	if u.Status != nil {
		sets = append(sets, "status=?")
		args = append(args, string(*u.Status))
	}
	if u.LastActivity != nil {
		sets = append(sets, "last_activity=?")
		args = append(args, u.LastActivity.UTC())
	}
	if u.CurrentTask != nil {
		sets = append(sets, "current_task=?")
		args = append(args, *u.CurrentTask)
	}
	if len(sets) > 0 {
		args = append(args, name)
		q := "UPDATE agents SET " + strings.Join(sets, ", ") + " WHERE name=?"
		if _, err := s.db.Exec(q, args...); err != nil {
			return nil, fmt.Errorf("update agent %s: %w", name, err)
		}
	}
	return s.Get(name)
}

func scanAgent(s db.Scanner) (*Agent, error) {
	var a Agent
	var status string
	var last sql.NullTime
	if err := s.Scan(&a.Name, &a.DisplayName, &a.Model, &status, &last, &a.CurrentTask, &a.Emoji); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	if last.Valid {
		t := last.Time
		a.LastActivity = &t
	}
	return &a, nil
}

// Touch is shorthand for an Update that only stamps last_activity.
func Touch(at time.Time) Update {
	return Update{LastActivity: &at}
}
