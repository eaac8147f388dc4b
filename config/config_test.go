package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":3335" {
		t.Errorf("Addr = %q, want :3335", cfg.Server.Addr)
	}
	if len(cfg.Agents) != 6 {
		t.Errorf("roster size = %d, want 6", len(cfg.Agents))
	}
	if cfg.Poller.LaneCap != 8 {
		t.Errorf("LaneCap = %d, want 8", cfg.Poller.LaneCap)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mc.yaml")
	body := `
server:
  addr: ":8080"
poller:
  poll_interval: 10s
agents:
  - name: solo
    display_name: Solo
    emoji: "🤖"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Poller.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %v", cfg.Poller.PollInterval)
	}
	if cfg.Poller.TickInterval != time.Second {
		t.Errorf("TickInterval = %v, default should survive", cfg.Poller.TickInterval)
	}
	if len(cfg.Agents) != 1 || cfg.Agents[0].Name != "solo" {
		t.Errorf("Agents = %+v", cfg.Agents)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	env := map[string]string{
		"MC_DB":         "/tmp/mc.db",
		"OPENCLAW_HOME": "/tmp/oc",
		"GATEWAY_TOKEN": "  ",
	}
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if cfg.Data.DBPath != "/tmp/mc.db" {
		t.Errorf("DBPath = %q", cfg.Data.DBPath)
	}
	if cfg.OpenClaw.Home != "/tmp/oc" {
		t.Errorf("Home = %q", cfg.OpenClaw.Home)
	}
	if cfg.OpenClaw.GatewayToken != "" {
		t.Errorf("blank env value should not override, got %q", cfg.OpenClaw.GatewayToken)
	}
}

func TestWorkspaceDirs(t *testing.T) {
	cfg := DefaultConfig()
	dirs := cfg.WorkspaceDirs()
	if dirs["main"] != "workspace" {
		t.Errorf("main = %q", dirs["main"])
	}
	if dirs["trading"] != "workspace-trading" {
		t.Errorf("trading = %q", dirs["trading"])
	}
}
