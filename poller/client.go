package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avntro/mission-control/activity"
	"github.com/avntro/mission-control/agent"
	"github.com/avntro/mission-control/board"
	"github.com/avntro/mission-control/schedule"
	"github.com/avntro/mission-control/task"
	"github.com/avntro/mission-control/workspace"
)

// StatusError is returned when the server answers with a 4xx or 5xx.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Client talks to the Mission Control HTTP API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a Client for baseURL with a 15s request timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// do sends body (when non-nil) as JSON and decodes the response into v
// (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, v any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(b))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}
	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// call sends one request and decodes the response into a T.
func call[T any](ctx context.Context, c *Client, method, path string, q url.Values, body any) (T, error) {
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out T
	err := c.do(ctx, method, path, body, &out)
	return out, err
}

// Status returns the server health document.
func (c *Client) Status(ctx context.Context) (map[string]string, error) {
	return call[map[string]string](ctx, c, http.MethodGet, "/api/status", nil, nil)
}

// Tasks lists persisted tasks.
func (c *Client) Tasks(ctx context.Context, f task.Filter) ([]task.Task, error) {
	q := url.Values{}
	if f.Status != nil {
		q.Set("status", string(*f.Status))
	}
	if f.AssignedAgent != "" {
		q.Set("agent", f.AssignedAgent)
	}
	return call[[]task.Task](ctx, c, http.MethodGet, "/api/tasks", q, nil)
}

// Task fetches one task with comments and history.
func (c *Client) Task(ctx context.Context, id string) (task.Task, error) {
	return call[task.Task](ctx, c, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, nil)
}

// CreateTask creates a persisted task.
func (c *Client) CreateTask(ctx context.Context, n task.NewTask) (task.Task, error) {
	return call[task.Task](ctx, c, http.MethodPost, "/api/tasks", nil, n)
}

// UpdateTask patches a task.
func (c *Client) UpdateTask(ctx context.Context, id string, p task.Patch) (task.Task, error) {
	return call[task.Task](ctx, c, http.MethodPatch, "/api/tasks/"+url.PathEscape(id), nil, p)
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil)
}

// AddComment appends a comment to a task.
func (c *Client) AddComment(ctx context.Context, cm task.Comment) (task.Comment, error) {
	return call[task.Comment](ctx, c, http.MethodPost, "/api/comments", nil, cm)
}

// LiveTasks lists the scanner's live tasks.
func (c *Client) LiveTasks(ctx context.Context) ([]task.Task, error) {
	return call[[]task.Task](ctx, c, http.MethodGet, "/api/live-tasks", nil, nil)
}

// Agents lists the roster.
func (c *Client) Agents(ctx context.Context) ([]agent.Agent, error) {
	return call[[]agent.Agent](ctx, c, http.MethodGet, "/api/agents", nil, nil)
}

// UpdateAgent patches an agent's status fields.
func (c *Client) UpdateAgent(ctx context.Context, name string, u agent.Update) (agent.Agent, error) {
	return call[agent.Agent](ctx, c, http.MethodPatch, "/api/agents/"+url.PathEscape(name), nil, u)
}

// AgentStats returns live telemetry keyed by agent name.
func (c *Client) AgentStats(ctx context.Context) (map[string]agent.Stats, error) {
	return call[map[string]agent.Stats](ctx, c, http.MethodGet, "/api/agent-stats", nil, nil)
}

// Activity lists the feed, most recent first.
func (c *Client) Activity(ctx context.Context, f activity.Filter) ([]activity.Event, error) {
	q := url.Values{}
	if f.Agent != "" {
		q.Set("agent", f.Agent)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return call[[]activity.Event](ctx, c, http.MethodGet, "/api/activity", q, nil)
}

// BoardView is the server-side merged board.
type BoardView struct {
	Lanes []board.LaneCards `json:"lanes"`
	Total int               `json:"total"`
}

// Board fetches the merged board with derived cards.
func (c *Client) Board(ctx context.Context) (BoardView, error) {
	return call[BoardView](ctx, c, http.MethodGet, "/api/board", nil, nil)
}

// ScheduledTasks lists the scheduled jobs.
func (c *Client) ScheduledTasks(ctx context.Context) ([]schedule.Job, error) {
	return call[[]schedule.Job](ctx, c, http.MethodGet, "/api/scheduled-tasks", nil, nil)
}

// Workspaces lists agent workspaces.
func (c *Client) Workspaces(ctx context.Context) ([]workspace.Workspace, error) {
	return call[[]workspace.Workspace](ctx, c, http.MethodGet, "/api/workspaces", nil, nil)
}

func workspacePath(agentName, file string) string {
	return "/api/workspaces/" + url.PathEscape(agentName) + "/" + url.PathEscape(file)
}

// WorkspaceFile reads one workspace file.
func (c *Client) WorkspaceFile(ctx context.Context, agentName, file string) (workspace.Content, error) {
	return call[workspace.Content](ctx, c, http.MethodGet, workspacePath(agentName, file), nil, nil)
}

// SaveWorkspaceFile overwrites one workspace file.
func (c *Client) SaveWorkspaceFile(ctx context.Context, agentName, file, content string) (workspace.File, error) {
	body := map[string]string{"content": content}
	return call[workspace.File](ctx, c, http.MethodPut, workspacePath(agentName, file), nil, body)
}

// WorkspaceChanges lists files changed after since.
func (c *Client) WorkspaceChanges(ctx context.Context, since time.Time) ([]workspace.Change, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	return call[[]workspace.Change](ctx, c, http.MethodGet, "/api/workspaces/changes", q, nil)
}
