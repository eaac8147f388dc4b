// Package report stores agent-written reports and imports markdown documents
// dropped into the docs directory.
package report

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/avntro/mission-control/db"
	"github.com/avntro/mission-control/internal/markdown"
)

// ErrNotFound is returned for unknown report IDs.
var ErrNotFound = errors.New("report not found")

// Source types.
const (
	SourceManual = "manual"
	SourceFile   = "file"
)

// Report is a markdown document with metadata.
type Report struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Author      string    `json:"author"`
	Tags        []string  `json:"tags"`
	SourceType  string    `json:"source_type"`
	Screenshots []string  `json:"screenshots"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewReport is the body accepted when creating a report.
type NewReport struct {
	Title       string   `json:"title" validate:"required"`
	Content     string   `json:"content"`
	Author      string   `json:"author"`
	Tags        []string `json:"tags"`
	SourceType  string   `json:"source_type" validate:"omitempty,oneof=manual file agent"`
	Screenshots []string `json:"screenshots"`
}

// Report converts the request, applying defaults.
func (n NewReport) Report() *Report {
	r := &Report{
		Title:       n.Title,
		Content:     n.Content,
		Author:      n.Author,
		Tags:        n.Tags,
		SourceType:  n.SourceType,
		Screenshots: n.Screenshots,
	}
	if r.SourceType == "" {
		r.SourceType = SourceManual
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	if r.Screenshots == nil {
		r.Screenshots = []string{}
	}
	return r
}

// Patch is a partial update applied by PUT.
type Patch struct {
	Title       *string  `json:"title,omitempty" validate:"omitempty,min=1"`
	Content     *string  `json:"content,omitempty"`
	Author      *string  `json:"author,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Screenshots []string `json:"screenshots,omitempty"`
}

// Filter narrows List.
type Filter struct {
	Tag    string
	Author string
}

// TagCount is one entry of the tag cloud.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Store persists reports in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an open database (see db.Open).
func NewStore(conn *sql.DB) *Store {
	return &Store{db: conn, now: func() time.Time { return time.Now().UTC() }}
}

const reportColumns = "id, title, content, author, tags, source_type, screenshots, created_at, updated_at"

// Create inserts r, assigning ID and timestamps.
func (s *Store) Create(r *Report) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()[:8]
	}
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	return r.ID, s.upsert(r)
}

func (s *Store) upsert(r *Report) error {
	tags, err := json.Marshal(nonNil(r.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	shots, err := json.Marshal(nonNil(r.Screenshots))
	if err != nil {
		return fmt.Errorf("marshal screenshots: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO reports (`+reportColumns+`) VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, content=excluded.content, author=excluded.author,
			tags=excluded.tags, source_type=excluded.source_type,
			screenshots=excluded.screenshots, updated_at=excluded.updated_at`,
		r.ID, r.Title, r.Content, r.Author, string(tags), r.SourceType, string(shots), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// Get returns one report.
func (s *Store) Get(id string) (*Report, error) {
	row := s.db.QueryRow("SELECT "+reportColumns+" FROM reports WHERE id=?", id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return r, err
}

// List returns reports newest first, optionally filtered by tag or author.
func (s *Store) List(f Filter) ([]Report, error) {
	q := "SELECT " + reportColumns + " FROM reports WHERE 1=1"
	args := []any{}
	if f.Author != "" {
		q += " AND author=?"
		args = append(args, f.Author)
	}
	if f.Tag != "" {
		q += " AND EXISTS (SELECT 1 FROM json_each(reports.tags) WHERE json_each.value=?)"
		args = append(args, f.Tag)
	}
	q += " ORDER BY created_at DESC, rowid DESC"
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()
	var out []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Update applies p and returns the stored report.
func (s *Store) Update(id string, p Patch) (*Report, error) {
	r, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Content != nil {
		r.Content = *p.Content
	}
	if p.Author != nil {
		r.Author = *p.Author
	}
	if p.Tags != nil {
		r.Tags = p.Tags
	}
	if p.Screenshots != nil {
		r.Screenshots = p.Screenshots
	}
	r.UpdatedAt = s.now()
	if err := s.upsert(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Delete removes a report.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec("DELETE FROM reports WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return nil
}

// Tags counts tag usage across all reports, most used first.
func (s *Store) Tags() ([]TagCount, error) {
	rows, err := s.db.Query(`
		SELECT json_each.value, COUNT(*) FROM reports, json_each(reports.tags)
		GROUP BY json_each.value`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()
	out := []TagCount{}
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out, rows.Err()
}

// Authors lists distinct non-empty authors alphabetically.
func (s *Store) Authors() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT author FROM reports WHERE author != '' ORDER BY author")
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Export formats.
const (
	FormatMarkdown = "md"
	FormatHTML     = "html"
)

// exportMeta is the front matter written by Export and read back by ImportDir.
type exportMeta struct {
	Title  string   `yaml:"title"`
	Author string   `yaml:"author,omitempty"`
	Tags   []string `yaml:"tags,omitempty"`
	Date   string   `yaml:"date"`
}

// Export renders r as a standalone document and returns its content type.
func Export(r *Report, format string) ([]byte, string, error) {
	switch format {
	case "", FormatMarkdown:
		meta, err := yaml.Marshal(exportMeta{
			Title:  r.Title,
			Author: r.Author,
			Tags:   r.Tags,
			Date:   r.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return nil, "", fmt.Errorf("encode front matter: %w", err)
		}
		var b strings.Builder
		b.WriteString("---\n")
		b.Write(meta)
		b.WriteString("---\n\n")
		b.WriteString(r.Content)
		return []byte(b.String()), "text/markdown; charset=utf-8", nil
	case FormatHTML:
		body, err := markdown.ToHTML(r.Content)
		if err != nil {
			return nil, "", err
		}
		doc := fmt.Sprintf("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>%s</title></head>\n<body>\n%s</body></html>\n",
			html.EscapeString(r.Title), body)
		return []byte(doc), "text/html; charset=utf-8", nil
	default:
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
}

func scanReport(s db.Scanner) (*Report, error) {
	var r Report
	var tags, shots string
	if err := s.Scan(&r.ID, &r.Title, &r.Content, &r.Author, &tags, &r.SourceType, &shots, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil || r.Tags == nil {
		r.Tags = []string{}
	}
	if err := json.Unmarshal([]byte(shots), &r.Screenshots); err != nil || r.Screenshots == nil {
		r.Screenshots = []string{}
	}
	return &r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
