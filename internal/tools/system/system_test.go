package system

import (
	"context"
	"strings"
	"testing"

	"github.com/marvin-core/marvin/internal/profile"
	"github.com/marvin-core/marvin/internal/registry"
	"github.com/marvin-core/marvin/internal/usage"
)

func TestSystemInfoReportsWorkingDir(t *testing.T) {
	out, err := systemInfo(context.Background(), &registry.ToolContext{WorkingDir: "/tmp/proj", Mode: "coding"}, nil)
	if err != nil {
		t.Fatalf("systemInfo: %v", err)
	}
	if !strings.Contains(out, "/tmp/proj") || !strings.Contains(out, "coding") {
		t.Fatalf("systemInfo() = %s", out)
	}
}

func TestGetUsageRequiresProfile(t *testing.T) {
	out, err := getUsage(context.Background(), &registry.ToolContext{}, map[string]any{})
	if err != nil {
		t.Fatalf("getUsage returned Go error: %v", err)
	}
	if !strings.HasPrefix(out, "Error:") {
		t.Fatalf("expected rejection without a profile, got %q", out)
	}
}

func TestGetUsageSummarizesRecordedTurns(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	prof, err := profile.Load("alice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tracker := usage.NewTracker(prof)
	tracker.RecordTurn("anthropic", "claude-sonnet-4", 1000, 500)

	out, err := getUsage(context.Background(), &registry.ToolContext{Profile: prof}, map[string]any{"window": "all"})
	if err != nil {
		t.Fatalf("getUsage: %v", err)
	}
	if strings.HasPrefix(out, "Error:") {
		t.Fatalf("getUsage returned an error: %s", out)
	}
	if !strings.Contains(out, "claude-sonnet-4") {
		t.Fatalf("expected usage summary to mention the model, got %q", out)
	}
}
