package budget

import (
	"strings"
	"testing"

	"github.com/marvin-core/marvin/pkg/models"
)

func TestClassifyOrdering(t *testing.T) {
	th := Thresholds{Warn: 100, Compact: 200, Hard: 300}
	tests := []struct {
		tokens int
		want   Level
	}{
		{0, LevelOK},
		{99, LevelOK},
		{100, LevelWarn},
		{199, LevelWarn},
		{200, LevelCompact},
		{300, LevelCompact},
		{301, LevelHard},
	}
	for _, tt := range tests {
		if got := th.Classify(tt.tokens); got != tt.want {
			t.Errorf("Classify(%d) = %v, want %v", tt.tokens, got, tt.want)
		}
	}
}

func TestDefaultThresholdsKeepOrdering(t *testing.T) {
	th := DefaultThresholds()
	if !(th.Warn < th.Compact && th.Compact < th.Hard) {
		t.Fatalf("expected Warn < Compact < Hard, got %+v", th)
	}
}

func TestEstimateIsDeterministic(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: "world"},
	}
	first, err := Estimate(messages)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	second, err := Estimate(messages)
	if err != nil {
		t.Fatalf("Estimate (second): %v", err)
	}
	if first != second {
		t.Fatalf("expected identical estimates for identical input, got %d and %d", first, second)
	}
	if first <= 0 {
		t.Fatalf("expected a positive estimate, got %d", first)
	}
}

func TestEstimateBytesCeilingDivision(t *testing.T) {
	tests := []struct {
		length int
		want   int
	}{
		{0, 0},
		{1, 1},
		{4, 1},
		{5, 2},
		{8, 2},
	}
	for _, tt := range tests {
		if got := EstimateBytes(make([]byte, tt.length)); got != tt.want {
			t.Errorf("EstimateBytes(len=%d) = %d, want %d", tt.length, got, tt.want)
		}
	}
}

func TestTruncateResultNoRoomLeft(t *testing.T) {
	out := TruncateResult("some tool output", 300, 300)
	if !strings.HasPrefix(out, "Error: no room in context budget") {
		t.Fatalf("expected the no-room error, got %q", out)
	}
	if !strings.Contains(out, "300 of 300") {
		t.Fatalf("expected used/max counts in the error, got %q", out)
	}
}

func TestTruncateResultPartialRoomKeepsHead(t *testing.T) {
	content := strings.Repeat("a", 100)
	out := TruncateResult(content, 290, 300) // 10 tokens = 40 chars of room
	if !strings.HasPrefix(out, strings.Repeat("a", 40)) {
		t.Fatalf("expected the head of the content to be kept, got %q", out)
	}
	if !strings.Contains(out, "truncated: 60 chars removed") {
		t.Fatalf("expected a truncation footer naming the removed count, got %q", out)
	}
}

func TestTruncateResultFitsUntouched(t *testing.T) {
	content := "short"
	if out := TruncateResult(content, 0, 300); out != content {
		t.Fatalf("expected content under budget to pass through, got %q", out)
	}
}
