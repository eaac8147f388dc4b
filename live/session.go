// Package live turns the session files written by the agent gateway into
// ephemeral tasks and per-agent telemetry. Nothing it produces is persisted.
package live

import (
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/avntro/mission-control/task"
)

// Session is one entry of an agent's sessions.json.
type Session struct {
	Key            string    `json:"key"`
	Agent          string    `json:"agent"`
	SessionID      string    `json:"session_id,omitempty"`
	Model          string    `json:"model,omitempty"`
	Label          string    `json:"label,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
	InputTokens    int64     `json:"input_tokens"`
	OutputTokens   int64     `json:"output_tokens"`
	TotalTokens    int64     `json:"total_tokens"`
	ContextTokens  int64     `json:"context_tokens,omitempty"`
	AbortedLastRun bool      `json:"aborted_last_run,omitempty"`
}

// Tokens is the session's total token count.
func (s Session) Tokens() int64 {
	if s.TotalTokens > 0 {
		return s.TotalTokens
	}
	return s.InputTokens + s.OutputTokens
}

// Cost estimates what the session has spent so far.
func (s Session) Cost() float64 {
	return EstimateCost(s.Model, s.InputTokens, s.OutputTokens)
}

// Source classifies the session by its key.
func (s Session) Source() task.Source {
	return SourceOf(s.Key)
}

// SourceOf classifies a session key: ":cron:" keys are cron runs,
// ":subagent:" keys are spawned subagents, anything else is interactive.
func SourceOf(key string) task.Source {
	switch {
	case strings.Contains(key, ":cron:"):
		return task.SourceCron
	case strings.Contains(key, ":subagent:"):
		return task.SourceSubagent
	default:
		return task.SourceInteractive
	}
}

// MainSessionKey is the key of an agent's primary conversation.
func MainSessionKey(agentName string) string {
	return "agent:" + agentName + ":main"
}

// ParseSessions reads a sessions.json document: an object mapping session
// key to entry. Entries that are not objects are skipped and missing fields
// read as zero. The result is sorted by most recent update first.
func ParseSessions(agentName string, data []byte) []Session {
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil
	}
	var out []Session
	doc.ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		created := epochMillis(value.Get("createdAt"))
		if created.IsZero() {
			created = epochMillis(value.Get("startedAt"))
		}
		out = append(out, Session{
			Key:            key.String(),
			Agent:          agentName,
			SessionID:      value.Get("sessionId").String(),
			Model:          value.Get("model").String(),
			Label:          value.Get("label").String(),
			CreatedAt:      created,
			UpdatedAt:      epochMillis(value.Get("updatedAt")),
			InputTokens:    nonNegative(value.Get("inputTokens").Int()),
			OutputTokens:   nonNegative(value.Get("outputTokens").Int()),
			TotalTokens:    nonNegative(value.Get("totalTokens").Int()),
			ContextTokens:  nonNegative(value.Get("contextTokens").Int()),
			AbortedLastRun: value.Get("abortedLastRun").Bool(),
		})
		return true
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// epochMillis accepts epoch milliseconds or an RFC 3339 string.
func epochMillis(r gjson.Result) time.Time {
	switch r.Type {
	case gjson.Number:
		if ms := r.Int(); ms > 0 {
			return time.UnixMilli(ms).UTC()
		}
	case gjson.String:
		if t, err := time.Parse(time.RFC3339, r.String()); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
