// Package ui renders the dashboard document as terminal text for
// `mission watch`.
package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/avntro/mission-control/board"
	"github.com/avntro/mission-control/poller"
	"github.com/avntro/mission-control/task"
)

var (
	// Colors
	ColorPrimary   = lipgloss.Color("205")
	ColorSecondary = lipgloss.Color("241")
	ColorSuccess   = lipgloss.Color("42")
	ColorError     = lipgloss.Color("160")
	ColorWarning   = lipgloss.Color("214")
	ColorText      = lipgloss.Color("252")

	StyleTitle   = lipgloss.NewStyle().Foreground(ColorText).Bold(true)
	StyleSubtle  = lipgloss.NewStyle().Foreground(ColorSecondary)
	StylePrimary = lipgloss.NewStyle().Foreground(ColorPrimary)
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning)

	StyleSectionTitle = lipgloss.NewStyle().
				Foreground(ColorPrimary).
				Bold(true).
				Underline(true)

	StyleLane = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorSecondary).
			Padding(0, 1)

	StyleNew = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
)

var laneTitles = map[task.Status]string{
	task.StatusTodo:       "To Do",
	task.StatusInProgress: "In Progress",
	task.StatusReview:     "Review",
	task.StatusDone:       "Done",
}

// BandStyle colors a context band.
func BandStyle(band string) lipgloss.Style {
	switch board.Band(band) {
	case board.BandGreen:
		return StyleSuccess
	case board.BandYellow:
		return StyleWarning
	default:
		return StyleError
	}
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "busy":
		return StyleWarning
	case "error":
		return StyleError
	default:
		return StyleSuccess
	}
}

// Bar draws a context bar of the given width for a 0..100 fill.
func Bar(fill, width int) string {
	n := fill * width / 100
	if n > width {
		n = width
	}
	if n < 0 {
		n = 0
	}
	return strings.Repeat("█", n) + strings.Repeat("░", width-n)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n || n < 2 {
		return s
	}
	return string(r[:n-1]) + "…"
}

func lane(doc *poller.Document, s task.Status, width int) string {
	rows := doc.Rows(board.LaneSection(s))
	var b strings.Builder
	b.WriteString(StyleTitle.Render(fmt.Sprintf("%s (%d)", laneTitles[s], len(rows))))
	inner := width - 4
	for _, r := range rows {
		b.WriteString("\n")
		marker := "•"
		if r.Get("live") != "" {
			marker = StylePrimary.Render("⚡")
		}
		b.WriteString(marker + " " + clip(r.Get("title"), inner-2))
		meta := []string{r.Get("agent")}
		for _, f := range []string{"duration", "cost", "tokens"} {
			if v := r.Get(f); v != "" {
				meta = append(meta, v)
			}
		}
		b.WriteString("\n  " + StyleSubtle.Render(clip(strings.Join(meta, " · "), inner-2)))
	}
	if footer := doc.Footer(board.LaneSection(s)); footer != "" {
		b.WriteString("\n" + StyleSubtle.Render(footer))
	}
	return StyleLane.Width(width - 2).Render(b.String())
}

func agents(doc *poller.Document) string {
	var b strings.Builder
	b.WriteString(StyleSectionTitle.Render("Agents"))
	for _, r := range doc.Rows(board.SectionAgents) {
		status := r.Get("status")
		line := fmt.Sprintf("\n%-22s %s", clip(r.Get("label"), 22), statusStyle(status).Render(fmt.Sprintf("%-5s", status)))
		if n, ok := doc.Node(board.SectionStats, r.Key); ok {
			fill, _ := strconv.Atoi(n.Get("bar_width"))
			line += " " + BandStyle(n.Get("band")).Render(Bar(fill, 20)) +
				fmt.Sprintf(" %5s %8s %9s", n.Get("context_pct"), n.Get("tokens"), n.Get("cost"))
		}
		if last := r.Get("last_activity"); last != "" {
			line += " " + StyleSubtle.Render(last)
		}
		b.WriteString(line)
	}
	return b.String()
}

func feed(doc *poller.Document, limit int) string {
	var b strings.Builder
	b.WriteString(StyleSectionTitle.Render("Activity"))
	for i, r := range doc.Rows(board.SectionFeed) {
		if i == limit {
			break
		}
		action := r.Get("action")
		if r.Get("status") == "failed" {
			action = StyleError.Render(action)
		}
		line := fmt.Sprintf("%s %-12s %s %s", r.Get("at"), r.Get("agent"), action, StyleSubtle.Render(r.Get("details")))
		if r.Get("new") != "" {
			line = StyleNew.Render("▶ ") + line
		} else {
			line = "  " + line
		}
		b.WriteString("\n" + line)
	}
	return b.String()
}

// Board renders every section of doc for a terminal width columns wide.
func Board(doc *poller.Document, width int) string {
	laneWidth := width / len(task.Lanes)
	if laneWidth < 24 {
		laneWidth = 24
	}
	lanes := make([]string, 0, len(task.Lanes))
	for _, s := range task.Lanes {
		lanes = append(lanes, lane(doc, s, laneWidth))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, lanes...),
		"",
		agents(doc),
		"",
		feed(doc, 10),
	)
}
