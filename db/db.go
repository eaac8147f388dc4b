// Package db opens the Mission Control SQLite database and owns its schema.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	assigned_agent TEXT NOT NULL DEFAULT '',
	priority       TEXT NOT NULL DEFAULT 'medium',
	status         TEXT NOT NULL DEFAULT 'todo',
	model          TEXT NOT NULL DEFAULT '',
	tokens         INTEGER NOT NULL DEFAULT 0,
	cost           REAL NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL,
	completed_at   DATETIME,
	duration       REAL
);

CREATE TABLE IF NOT EXISTS comments (
	id         TEXT PRIMARY KEY,
	task_id    TEXT NOT NULL,
	agent      TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	type       TEXT NOT NULL DEFAULT 'comment',
	created_at DATETIME NOT NULL,
	FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS agents (
	name          TEXT PRIMARY KEY,
	display_name  TEXT NOT NULL,
	model         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'idle',
	last_activity DATETIME,
	current_task  TEXT NOT NULL DEFAULT '',
	emoji         TEXT NOT NULL DEFAULT '🤖'
);

CREATE TABLE IF NOT EXISTS activity_feed (
	id         TEXT PRIMARY KEY,
	agent      TEXT NOT NULL DEFAULT '',
	action     TEXT NOT NULL,
	details    TEXT NOT NULL DEFAULT '',
	task_id    TEXT NOT NULL DEFAULT '',
	success    INTEGER NOT NULL DEFAULT 1,
	duration   REAL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS standups (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	date         TEXT NOT NULL,
	participants TEXT NOT NULL DEFAULT '[]',
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS standup_messages (
	id         TEXT PRIMARY KEY,
	standup_id TEXT NOT NULL,
	agent      TEXT NOT NULL,
	content    TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT 'message',
	completed  INTEGER NOT NULL DEFAULT 0,
	assignee   TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	FOREIGN KEY (standup_id) REFERENCES standups(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS reports (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	content     TEXT NOT NULL DEFAULT '',
	author      TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '[]',
	source_type TEXT NOT NULL DEFAULT 'manual',
	screenshots TEXT NOT NULL DEFAULT '[]',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_comments_task_created ON comments(task_id, created_at);
CREATE INDEX IF NOT EXISTS idx_activity_created ON activity_feed(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_activity_task ON activity_feed(task_id, created_at);
CREATE INDEX IF NOT EXISTS idx_standup_messages ON standup_messages(standup_id, created_at);
`

// Open opens (or creates) the SQLite database at path and ensures the schema
// exists. The caller is responsible for calling Close.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

// Scanner abstracts sql.Row and sql.Rows for the per-table scan helpers.
type Scanner interface {
	Scan(dest ...any) error
}
