// Package config defines the Mission Control application configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Mission Control configuration.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Data       DataConfig       `json:"data" yaml:"data"`
	OpenClaw   OpenClawConfig   `json:"openclaw" yaml:"openclaw"`
	Agents     []AgentConfig    `json:"agents" yaml:"agents"`
	Workspaces WorkspacesConfig `json:"workspaces" yaml:"workspaces"`
	Schedule   []JobConfig      `json:"schedule" yaml:"schedule"`
	Poller     PollerConfig     `json:"poller" yaml:"poller"`
	LogLevel   string           `json:"log_level" yaml:"log_level"`
	LogFormat  string           `json:"log_format" yaml:"log_format"` // "json" or "text"
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":3335"
}

// DataConfig locates persisted state.
type DataConfig struct {
	DBPath       string `json:"db_path" yaml:"db_path"`
	DocsPath     string `json:"docs_path" yaml:"docs_path"`           // report markdown files
	GPUStatsFile string `json:"gpu_stats_file" yaml:"gpu_stats_file"` // written by the host collector
}

// OpenClawConfig locates the agent gateway and its session files.
type OpenClawConfig struct {
	Home         string        `json:"home" yaml:"home"`
	GatewayURL   string        `json:"gateway_url" yaml:"gateway_url"`
	GatewayToken string        `json:"gateway_token" yaml:"gateway_token"`
	ActiveWindow time.Duration `json:"active_window" yaml:"active_window"` // session counts as running
	RecentWindow time.Duration `json:"recent_window" yaml:"recent_window"` // finished session still shown
}

// AgentConfig seeds one member of the fixed roster.
type AgentConfig struct {
	Name        string `json:"name" yaml:"name"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Model       string `json:"model" yaml:"model"`
	Emoji       string `json:"emoji" yaml:"emoji"`
	Workspace   string `json:"workspace" yaml:"workspace"` // directory under OpenClaw home
}

// WorkspacesConfig controls the markdown workspace viewer.
type WorkspacesConfig struct {
	AllowedFiles []string `json:"allowed_files" yaml:"allowed_files"`
}

// JobConfig describes a scheduled job shown on the dashboard.
type JobConfig struct {
	ID            string `json:"id" yaml:"id"`
	Title         string `json:"title" yaml:"title"`
	Description   string `json:"description" yaml:"description"`
	Schedule      string `json:"schedule" yaml:"schedule"`
	ScheduleHuman string `json:"schedule_human" yaml:"schedule_human"`
	Type          string `json:"type" yaml:"type"` // daily, weekly
	Agent         string `json:"agent" yaml:"agent"`
	Icon          string `json:"icon" yaml:"icon"`
}

// PollerConfig controls the dashboard client cadence.
type PollerConfig struct {
	ServerURL      string        `json:"server_url" yaml:"server_url"`
	PollInterval   time.Duration `json:"poll_interval" yaml:"poll_interval"`
	TickInterval   time.Duration `json:"tick_interval" yaml:"tick_interval"`
	WorkspaceCheck time.Duration `json:"workspace_check" yaml:"workspace_check"`
	LaneCap        int           `json:"lane_cap" yaml:"lane_cap"`
	FeedLimit      int           `json:"feed_limit" yaml:"feed_limit"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":3335",
		},
		Data: DataConfig{
			DBPath:       "/data/mission_control.db",
			DocsPath:     "/data/docs",
			GPUStatsFile: "/data/gpu_stats.json",
		},
		OpenClaw: OpenClawConfig{
			Home:         "/home/pc1/.openclaw",
			GatewayURL:   "https://100.101.174.1:18789",
			ActiveWindow: 2 * time.Minute,
			RecentWindow: 15 * time.Minute,
		},
		Agents: DefaultRoster(),
		Workspaces: WorkspacesConfig{
			AllowedFiles: []string{"SOUL.md", "MEMORY.md", "TOOLS.md", "AGENTS.md", "IDENTITY.md"},
		},
		Schedule: DefaultSchedule(),
		Poller: PollerConfig{
			ServerURL:      "http://localhost:3335",
			PollInterval:   9 * time.Second,
			TickInterval:   time.Second,
			WorkspaceCheck: 5 * time.Second,
			LaneCap:        8,
			FeedLimit:      50,
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// DefaultRoster is the fixed agent roster seeded into an empty store.
func DefaultRoster() []AgentConfig {
	return []AgentConfig{
		{Name: "main", DisplayName: "Mike", Model: "anthropic/claude-opus-4-6", Emoji: "🎯", Workspace: "workspace"},
		{Name: "trading", DisplayName: "Trading / AA", Model: "anthropic/claude-opus-4-6", Emoji: "📈", Workspace: "workspace-trading"},
		{Name: "it-support", DisplayName: "IT Support", Model: "anthropic/claude-sonnet-4-5", Emoji: "🔧", Workspace: "workspace-it-support"},
		{Name: "dev", DisplayName: "Dev", Model: "anthropic/claude-opus-4-6", Emoji: "💻", Workspace: "workspace-dev"},
		{Name: "voice", DisplayName: "Voice", Model: "anthropic/claude-sonnet-4-5", Emoji: "🎙️", Workspace: "workspace-voice"},
		{Name: "troubleshoot", DisplayName: "Troubleshoot", Model: "anthropic/claude-sonnet-4-5", Emoji: "🔍", Workspace: "workspace-troubleshoot"},
	}
}

// DefaultSchedule lists the cron jobs run by the roster.
func DefaultSchedule() []JobConfig {
	return []JobConfig{
		{ID: "daily-memory-backup", Title: "Daily Memory Backup", Description: "Backup all agent MEMORY.md files",
			Schedule: "0 3 * * *", ScheduleHuman: "Daily at 3:00 AM", Type: "daily", Agent: "it-support", Icon: "💾"},
		{ID: "trading-market-scan", Title: "Market Open Scan", Description: "Scan markets at opening for trading signals",
			Schedule: "30 9 * * 1-5", ScheduleHuman: "Mon-Fri at 9:30 AM", Type: "daily", Agent: "trading", Icon: "📊"},
		{ID: "trading-close-review", Title: "Market Close Review", Description: "Review positions and P&L at market close",
			Schedule: "0 16 * * 1-5", ScheduleHuman: "Mon-Fri at 4:00 PM", Type: "daily", Agent: "trading", Icon: "📈"},
		{ID: "health-check", Title: "System Health Check", Description: "Check all services, Docker containers, and disk space",
			Schedule: "*/30 * * * *", ScheduleHuman: "Every 30 minutes", Type: "daily", Agent: "it-support", Icon: "🏥"},
		{ID: "overnight-summary", Title: "Overnight Activity Summary", Description: "Compile overnight agent activity into daily report",
			Schedule: "0 7 * * *", ScheduleHuman: "Daily at 7:00 AM", Type: "daily", Agent: "main", Icon: "🌅"},
		{ID: "weekly-standup", Title: "Weekly Team Standup", Description: "Auto-trigger weekly standup summary for all agents",
			Schedule: "0 9 * * 1", ScheduleHuman: "Monday at 9:00 AM", Type: "weekly", Agent: "main", Icon: "📋"},
		{ID: "weekly-performance", Title: "Weekly Performance Report", Description: "Aggregate token usage, costs, task completion rates",
			Schedule: "0 18 * * 5", ScheduleHuman: "Friday at 6:00 PM", Type: "weekly", Agent: "dev", Icon: "📊"},
		{ID: "weekly-backup", Title: "Weekly Full Backup", Description: "Full backup of all workspaces and databases",
			Schedule: "0 2 * * 0", ScheduleHuman: "Sunday at 2:00 AM", Type: "weekly", Agent: "it-support", Icon: "💿"},
	}
}

// Load reads a YAML config file and returns the parsed configuration with
// environment overrides applied. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	// A .env file is optional.
	_ = godotenv.Load()
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set("MC_ADDR", &c.Server.Addr)
	set("MC_DB", &c.Data.DBPath)
	set("DOCS_PATH", &c.Data.DocsPath)
	set("GPU_STATS_FILE", &c.Data.GPUStatsFile)
	set("OPENCLAW_HOME", &c.OpenClaw.Home)
	set("GATEWAY_URL", &c.OpenClaw.GatewayURL)
	set("GATEWAY_TOKEN", &c.OpenClaw.GatewayToken)
	set("MC_SERVER", &c.Poller.ServerURL)
	set("MC_LOG_LEVEL", &c.LogLevel)
}

// WorkspaceDirs maps agent name to its workspace directory name.
func (c *Config) WorkspaceDirs() map[string]string {
	dirs := make(map[string]string, len(c.Agents))
	for _, a := range c.Agents {
		if a.Workspace != "" {
			dirs[a.Name] = a.Workspace
		}
	}
	return dirs
}
