// Package standup stores standup meetings, their chat messages and the action
// items raised in them.
package standup

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avntro/mission-control/db"
)

// ErrNotFound is returned for unknown standup or message IDs.
var ErrNotFound = errors.New("standup not found")

// Message types.
const (
	TypeMessage    = "message"
	TypeActionItem = "action_item"
)

// Standup is one meeting.
type Standup struct {
	ID           string    `json:"id"`
	Title        string    `json:"title" validate:"required"`
	Date         string    `json:"date"` // YYYY-MM-DD
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`

	MessageCount int       `json:"message_count"`
	Messages     []Message `json:"messages,omitempty"`
}

// Message is a chat line or an action item.
type Message struct {
	ID        string    `json:"id"`
	StandupID string    `json:"standup_id"`
	Agent     string    `json:"agent" validate:"required"`
	Content   string    `json:"content" validate:"required"`
	Type      string    `json:"type" validate:"omitempty,oneof=message action_item"`
	Completed bool      `json:"completed"`
	Assignee  string    `json:"assignee,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ActionUpdate changes an action item.
type ActionUpdate struct {
	Completed *bool   `json:"completed,omitempty"`
	Assignee  *string `json:"assignee,omitempty"`
}

// ListLimit caps List results.
const ListLimit = 20

// Store persists standups in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an open database (see db.Open).
func NewStore(conn *sql.DB) *Store {
	return &Store{db: conn, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts s. Date defaults to today.
func (s *Store) Create(st *Standup) (string, error) {
	st.ID = uuid.NewString()[:8]
	st.CreatedAt = s.now()
	if st.Date == "" {
		st.Date = st.CreatedAt.Format(time.DateOnly)
	}
	if st.Participants == nil {
		st.Participants = []string{}
	}
	participants, err := json.Marshal(st.Participants)
	if err != nil {
		return "", fmt.Errorf("marshal participants: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO standups (id, title, date, participants, created_at) VALUES (?,?,?,?,?)`,
		st.ID, st.Title, st.Date, string(participants), st.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert standup: %w", err)
	}
	return st.ID, nil
}

// List returns the most recent standups with their message counts.
func (s *Store) List() ([]Standup, error) {
	rows, err := s.db.Query(`
		SELECT s.id, s.title, s.date, s.participants, s.created_at,
			(SELECT COUNT(*) FROM standup_messages m WHERE m.standup_id = s.id)
		FROM standups s ORDER BY s.created_at DESC LIMIT ?`, ListLimit)
	if err != nil {
		return nil, fmt.Errorf("list standups: %w", err)
	}
	defer rows.Close()
	var out []Standup
	for rows.Next() {
		st, err := scanStandup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// Get returns one standup with its messages, oldest first.
func (s *Store) Get(id string) (*Standup, error) {
	row := s.db.QueryRow(`
		SELECT s.id, s.title, s.date, s.participants, s.created_at,
			(SELECT COUNT(*) FROM standup_messages m WHERE m.standup_id = s.id)
		FROM standups s WHERE s.id=?`, id)
	st, err := scanStandup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("standup %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT id, standup_id, agent, content, type, completed, assignee, created_at
		FROM standup_messages WHERE standup_id=? ORDER BY created_at ASC, rowid ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	st.Messages = []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		st.Messages = append(st.Messages, *m)
	}
	return st, rows.Err()
}

// AddMessage appends m to its standup.
func (s *Store) AddMessage(m *Message) (string, error) {
	var exists int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM standups WHERE id=?", m.StandupID).Scan(&exists); err != nil {
		return "", fmt.Errorf("lookup standup: %w", err)
	}
	if exists == 0 {
		return "", fmt.Errorf("standup %s: %w", m.StandupID, ErrNotFound)
	}
	m.ID = uuid.NewString()[:8]
	m.CreatedAt = s.now()
	if m.Type == "" {
		m.Type = TypeMessage
	}
	_, err := s.db.Exec(`
		INSERT INTO standup_messages (id, standup_id, agent, content, type, completed, assignee, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.StandupID, m.Agent, m.Content, m.Type, boolInt(m.Completed), m.Assignee, m.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	return m.ID, nil
}

// UpdateMessage applies u to a message.
func (s *Store) UpdateMessage(id string, u ActionUpdate) (*Message, error) {
	row := s.db.QueryRow(`
		SELECT id, standup_id, agent, content, type, completed, assignee, created_at
		FROM standup_messages WHERE id=?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if u.Completed != nil {
		m.Completed = *u.Completed
	}
	if u.Assignee != nil {
		m.Assignee = *u.Assignee
	}
	_, err = s.db.Exec("UPDATE standup_messages SET completed=?, assignee=? WHERE id=?",
		boolInt(m.Completed), m.Assignee, id)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	return m, nil
}

func scanStandup(s db.Scanner) (*Standup, error) {
	var st Standup
	var participants string
	if err := s.Scan(&st.ID, &st.Title, &st.Date, &participants, &st.CreatedAt, &st.MessageCount); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(participants), &st.Participants); err != nil {
		st.Participants = []string{}
	}
	return &st, nil
}

func scanMessage(s db.Scanner) (*Message, error) {
	var m Message
	var completed int
	if err := s.Scan(&m.ID, &m.StandupID, &m.Agent, &m.Content, &m.Type, &completed, &m.Assignee, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Completed = completed != 0
	return &m, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
