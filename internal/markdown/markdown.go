// Package markdown renders workspace files and reports to HTML and splits
// YAML front matter from markdown bodies.
package markdown

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"
)

// The goldmark instance is stateless once built and safe to share.
var (
	renderer     goldmark.Markdown
	rendererOnce sync.Once
)

func getRenderer() goldmark.Markdown {
	rendererOnce.Do(func() {
		renderer = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.DefinitionList,
			),
		)
	})
	return renderer
}

// ToHTML converts markdown source to an HTML fragment. Raw HTML in the source
// is omitted.
func ToHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := getRenderer().Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

const frontmatterSeparator = "---"

// SplitFrontmatter separates a leading YAML block from the body. Content
// without front matter returns an empty map and the input unchanged.
func SplitFrontmatter(content string) (map[string]any, string, error) {
	meta := map[string]any{}
	if !strings.HasPrefix(content, frontmatterSeparator) {
		return meta, content, nil
	}
	rest := content[len(frontmatterSeparator):]
	idx := strings.Index(rest, "\n"+frontmatterSeparator)
	if idx < 0 {
		return meta, content, nil
	}
	block := rest[:idx]
	body := strings.TrimLeft(rest[idx+len("\n"+frontmatterSeparator):], "\r\n")
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return map[string]any{}, content, fmt.Errorf("parse front matter: %w", err)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return meta, body, nil
}
