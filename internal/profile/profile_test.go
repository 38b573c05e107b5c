package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marvin-core/marvin/pkg/models"
)

func withTempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadCreatesProfileDirectory(t *testing.T) {
	home := withTempHome(t)

	p, err := Load("alice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := filepath.Join(home, ".marvin", "profiles", "alice")
	if p.Dir() != want {
		t.Fatalf("Dir() = %q, want %q", p.Dir(), want)
	}
	if len(p.Preferences) != 0 {
		t.Fatalf("expected empty preferences on first load, got %v", p.Preferences)
	}
}

func TestLoadRejectsEmptyName(t *testing.T) {
	withTempHome(t)
	if _, err := Load("  "); err == nil {
		t.Fatal("expected error for blank profile name")
	}
}

func TestLastProfileRoundTrip(t *testing.T) {
	withTempHome(t)

	if name, err := ReadLastProfile(); err != nil || name != "" {
		t.Fatalf("expected empty last profile before any write, got %q, err %v", name, err)
	}
	if err := WriteLastProfile("bob"); err != nil {
		t.Fatalf("WriteLastProfile: %v", err)
	}
	name, err := ReadLastProfile()
	if err != nil {
		t.Fatalf("ReadLastProfile: %v", err)
	}
	if name != "bob" {
		t.Fatalf("ReadLastProfile() = %q, want %q", name, "bob")
	}
}

func TestListProfilesSortedAndEmpty(t *testing.T) {
	withTempHome(t)

	names, err := ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected no profiles yet, got %v", names)
	}

	for _, n := range []string{"zed", "alice", "mallory"} {
		if _, err := Load(n); err != nil {
			t.Fatalf("Load(%q): %v", n, err)
		}
	}
	names, err = ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	want := []string{"alice", "mallory", "zed"}
	if len(names) != len(want) {
		t.Fatalf("ListProfiles() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("ListProfiles() = %v, want %v", names, want)
		}
	}
}

func TestSavePreferencesRoundTrip(t *testing.T) {
	withTempHome(t)

	p, err := Load("alice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p.Preferences["units"] = "metric"
	if err := p.SavePreferences(); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}

	reloaded, err := Load("alice")
	if err != nil {
		t.Fatalf("Load (reload): %v", err)
	}
	if reloaded.Preferences["units"] != "metric" {
		t.Fatalf("reloaded preferences = %v, want units=metric", reloaded.Preferences)
	}
}

func TestChatLogAppendAndPop(t *testing.T) {
	withTempHome(t)

	p, err := Load("alice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, ok := p.PopChatLog(); ok {
		t.Fatal("expected PopChatLog on empty log to return false")
	}

	entry := models.ChatLogEntry{Role: "user", Text: "hello"}
	if err := p.AppendChatLog(entry); err != nil {
		t.Fatalf("AppendChatLog: %v", err)
	}

	reloaded, err := Load("alice")
	if err != nil {
		t.Fatalf("Load (reload): %v", err)
	}
	if len(reloaded.ChatLog) != 1 || reloaded.ChatLog[0].Text != "hello" {
		t.Fatalf("reloaded chat log = %+v, want one entry with content %q", reloaded.ChatLog, "hello")
	}

	popped, ok := reloaded.PopChatLog()
	if !ok || popped.Text != "hello" {
		t.Fatalf("PopChatLog() = %+v, %v, want the appended entry", popped, ok)
	}
	if len(reloaded.ChatLog) != 0 {
		t.Fatalf("expected chat log empty after pop, got %+v", reloaded.ChatLog)
	}
}

func TestAppendInputHistory(t *testing.T) {
	withTempHome(t)

	p, err := Load("alice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := p.AppendInputHistory("first command"); err != nil {
		t.Fatalf("AppendInputHistory: %v", err)
	}
	if err := p.AppendInputHistory("second\ncommand"); err != nil {
		t.Fatalf("AppendInputHistory: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(p.Dir(), inputHistoryFile))
	if err != nil {
		t.Fatalf("read input history: %v", err)
	}
	want := "first command\nsecond command\n"
	if string(data) != want {
		t.Fatalf("input history = %q, want %q", string(data), want)
	}
}

func TestWriteBackupProducesJSONLines(t *testing.T) {
	withTempHome(t)

	p, err := Load("alice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	path, err := p.WriteBackup([]models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	})
	if err != nil {
		t.Fatalf("WriteBackup: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 backup lines, got %d: %q", len(lines), string(data))
	}
}
