package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrompter_Confirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		p := newPrompter(strings.NewReader(tt.input), &out)
		if got := p.Confirm("Delete task abc?"); got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Delete task abc? [y/N]") {
			t.Errorf("prompt not written: %q", out.String())
		}
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	want := map[string]bool{"status": false, "agents": false, "tasks": false, "task": false, "board": false, "watch": false, "activity": false, "jobs": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestTaskDelete_HasYesFlag(t *testing.T) {
	if taskDeleteCmd.Flags().Lookup("yes") == nil {
		t.Fatal("delete should accept --yes")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo world", 6); got != "héllo…" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
}
