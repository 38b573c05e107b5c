package git

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/marvin-core/marvin/internal/registry"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	return dir
}

func TestGitCommit(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "a.txt", "hello")

	out, err := gitCommit(context.Background(), &registry.ToolContext{WorkingDir: dir}, map[string]any{
		"message": "add a.txt",
	})
	if err != nil {
		t.Fatalf("gitCommit: %v", err)
	}
	if strings.HasPrefix(out, "Error:") {
		t.Fatalf("gitCommit returned an error: %s", out)
	}
}

func TestGitCommitRequiresMessage(t *testing.T) {
	dir := initRepo(t)
	out, err := gitCommit(context.Background(), &registry.ToolContext{WorkingDir: dir}, map[string]any{})
	if err != nil {
		t.Fatalf("gitCommit returned Go error: %v", err)
	}
	if !strings.HasPrefix(out, "Error:") {
		t.Fatalf("expected rejection, got %q", out)
	}
}

func TestGitCheckoutCreatesBranch(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "a.txt", "hello")
	if out, err := gitCommit(context.Background(), &registry.ToolContext{WorkingDir: dir}, map[string]any{"message": "init"}); err != nil || strings.HasPrefix(out, "Error:") {
		t.Fatalf("setup commit failed: out=%q err=%v", out, err)
	}

	out, err := gitCheckout(context.Background(), &registry.ToolContext{WorkingDir: dir}, map[string]any{
		"ref": "feature/x", "create": true,
	})
	if err != nil {
		t.Fatalf("gitCheckout: %v", err)
	}
	if strings.HasPrefix(out, "Error:") {
		t.Fatalf("gitCheckout returned an error: %s", out)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	cmd := exec.Command("sh", "-c", "printf %s \""+content+"\" > "+name)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("write %s: %v\n%s", name, err, out)
	}
}
