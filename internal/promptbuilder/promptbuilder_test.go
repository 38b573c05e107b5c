package promptbuilder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marvin-core/marvin/pkg/models"
)

func TestBuildOmitsEmptySections(t *testing.T) {
	out := Build(ProfileView{}, models.ModeSurf, false, "")
	if !strings.Contains(out, "You are Marvin") {
		t.Fatalf("expected the role preamble, got %q", out)
	}
	for _, absent := range []string{"Active profile:", "Preferences:", "Saved places:", "Recent conversation:"} {
		if strings.Contains(out, absent) {
			t.Errorf("expected empty section %q to be omitted", absent)
		}
	}
	if strings.Contains(out, codingPreamble) {
		t.Error("expected no coding preamble outside coding mode")
	}
}

func TestBuildIncludesProfileSections(t *testing.T) {
	view := ProfileView{
		Name:        "alice",
		Preferences: map[string]any{"units": "metric", "tone": "brief"},
		SavedPlaces: []models.SavedPlace{
			{Name: "home", Address: "1 Main St"},
			{Name: "cabin", Latitude: 45.5, Longitude: -121.7},
		},
		ChatLog: []models.ChatLogEntry{
			{Role: "user", Text: "what's the weather"},
			{Role: "assistant", Text: "sunny"},
		},
	}
	out := Build(view, models.ModeSurf, false, "")

	if !strings.Contains(out, "Active profile: alice") {
		t.Errorf("expected the profile name, got %q", out)
	}
	if !strings.Contains(out, "units: metric") || !strings.Contains(out, "tone: brief") {
		t.Errorf("expected preference lines, got %q", out)
	}
	if !strings.Contains(out, "home (1 Main St)") {
		t.Errorf("expected the address-form saved place, got %q", out)
	}
	if !strings.Contains(out, "cabin (45.50000, -121.70000)") {
		t.Errorf("expected the coordinate-form saved place, got %q", out)
	}
	if !strings.Contains(out, "[user] what's the weather") || !strings.Contains(out, "[assistant] sunny") {
		t.Errorf("expected role-tagged history lines, got %q", out)
	}
}

func TestBuildHistoryIsCappedAndTruncated(t *testing.T) {
	var log []models.ChatLogEntry
	for i := 0; i < HistoryEntryCap+5; i++ {
		log = append(log, models.ChatLogEntry{Role: "user", Text: strings.Repeat("y", HistoryCharCap+50)})
	}
	log[0].Text = "FIRST-ENTRY-MARKER"

	out := Build(ProfileView{ChatLog: log}, models.ModeSurf, false, "")
	if strings.Contains(out, "FIRST-ENTRY-MARKER") {
		t.Error("expected entries beyond the cap to be dropped from the front")
	}
	if strings.Contains(out, strings.Repeat("y", HistoryCharCap+1)) {
		t.Error("expected each history line to be truncated to the char cap")
	}
}

func TestBuildCodingModeInlinesWorkingDocs(t *testing.T) {
	dir := t.TempDir()
	marvinDir := filepath.Join(dir, ".marvin")
	if err := os.MkdirAll(marvinDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(marvinDir, "spec.md"), []byte("# Project spec\ndetails"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := Build(ProfileView{}, models.ModeCoding, true, dir)
	if !strings.Contains(out, codingPreamble) {
		t.Fatal("expected the coding preamble in coding mode")
	}
	if !strings.Contains(out, "# Project spec") {
		t.Fatalf("expected .marvin/spec.md to be inlined, got %q", out)
	}
	if strings.Contains(out, "design.md:") {
		t.Error("expected the missing design.md section to be omitted")
	}
}

func TestBuildCapsWorkingDocSize(t *testing.T) {
	dir := t.TempDir()
	marvinDir := filepath.Join(dir, ".marvin")
	if err := os.MkdirAll(marvinDir, 0o755); err != nil {
		t.Fatal(err)
	}
	big := strings.Repeat("z", SpecDocByteCap+500)
	if err := os.WriteFile(filepath.Join(marvinDir, "design.md"), []byte(big), 0o644); err != nil {
		t.Fatal(err)
	}

	out := Build(ProfileView{}, models.ModeCoding, true, dir)
	if strings.Contains(out, strings.Repeat("z", SpecDocByteCap+1)) {
		t.Error("expected the inlined doc to be truncated to the byte cap")
	}
	if !strings.Contains(out, "design.md:") {
		t.Error("expected design.md to be included when present")
	}
}
