package report

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/avntro/mission-control/internal/markdown"
)

// AuthorFromFilename guesses the author from a file name such as
// "dev-report-2024.md". A leading roster name wins, so multi-word agents like
// "it-support" are matched whole; otherwise the first segment is used.
func AuthorFromFilename(name string, roster []string) string {
	stem := strings.ToLower(strings.TrimSuffix(path.Base(name), path.Ext(name)))
	best := ""
	for _, a := range roster {
		a = strings.ToLower(a)
		if (stem == a || strings.HasPrefix(stem, a+"-") || strings.HasPrefix(stem, a+"_")) && len(a) > len(best) {
			best = a
		}
	}
	if best != "" {
		return best
	}
	seg, _, _ := strings.Cut(strings.ReplaceAll(stem, "_", "-"), "-")
	return seg
}

var noiseToken = regexp.MustCompile(`^v?\d+$`)

// TagsFromFilename derives tags from the words of a file name, dropping the
// author, version numbers, dates and one-letter words.
func TagsFromFilename(name string, roster []string) []string {
	stem := strings.ToLower(strings.TrimSuffix(path.Base(name), path.Ext(name)))
	author := AuthorFromFilename(name, roster)
	stem = strings.TrimPrefix(stem, author)
	tags := []string{}
	seen := map[string]bool{}
	for _, w := range strings.FieldsFunc(stem, func(r rune) bool { return r == '-' || r == '_' || r == ' ' || r == '.' }) {
		if len(w) < 2 || noiseToken.MatchString(w) || seen[w] {
			continue
		}
		seen[w] = true
		tags = append(tags, w)
	}
	return tags
}

// TitleFromContent returns the first level-one heading, falling back to the
// first non-blank line. Empty content yields "".
func TitleFromContent(content string) string {
	var first string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
		if first == "" && line != "" {
			first = line
		}
	}
	if len(first) > 80 {
		first = first[:80]
	}
	return first
}

// docNamespace keys imported document IDs so re-imports update in place.
var docNamespace = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")

// ImportDir upserts every markdown file in dir as a file-sourced report and
// returns how many were imported. Unreadable files are logged and skipped.
func (s *Store) ImportDir(fsys afero.Fs, dir string, roster []string, logger *slog.Logger) (int, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read docs dir %s: %w", dir, err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".md") {
			continue
		}
		p := path.Join(dir, e.Name())
		data, err := afero.ReadFile(fsys, p)
		if err != nil {
			logger.Warn("skip doc", slog.String("path", p), slog.Any("err", err))
			continue
		}
		r := reportFromDoc(e.Name(), string(data), roster)
		r.ID = "doc-" + uuid.NewSHA1(docNamespace, []byte(p)).String()[:8]
		r.CreatedAt = e.ModTime().UTC()
		r.UpdatedAt = r.CreatedAt
		if existing, err := s.Get(r.ID); err == nil {
			r.CreatedAt = existing.CreatedAt
		}
		if err := s.upsert(r); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func reportFromDoc(name, content string, roster []string) *Report {
	meta, body, err := markdown.SplitFrontmatter(content)
	if err != nil {
		meta, body = map[string]any{}, content
	}
	r := &Report{
		Content:     body,
		SourceType:  SourceFile,
		Screenshots: []string{},
	}
	r.Title, _ = meta["title"].(string)
	if r.Title == "" {
		r.Title = TitleFromContent(body)
	}
	if r.Title == "" {
		r.Title = strings.TrimSuffix(name, path.Ext(name))
	}
	r.Author, _ = meta["author"].(string)
	if r.Author == "" {
		r.Author = AuthorFromFilename(name, roster)
	}
	if raw, ok := meta["tags"].([]any); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok && s != "" {
				r.Tags = append(r.Tags, s)
			}
		}
	}
	if len(r.Tags) == 0 {
		r.Tags = TagsFromFilename(name, roster)
	}
	return r
}
