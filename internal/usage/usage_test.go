package usage

import (
	"testing"
	"time"
)

type fakePersister struct {
	usageRecords []any
	toolRecords  []any
}

func (f *fakePersister) AppendUsageRecord(v any) error {
	f.usageRecords = append(f.usageRecords, v)
	return nil
}

func (f *fakePersister) AppendToolCallRecord(v any) error {
	f.toolRecords = append(f.toolRecords, v)
	return nil
}

func TestEstimateCostKnownModel(t *testing.T) {
	got := EstimateCost("claude-sonnet-4", 1000, 500)
	want := (1000*3.00 + 500*15.00) / 1_000_000
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("EstimateCost() = %v, want %v", got, want)
	}
}

func TestEstimateCostUnknownModelIsZero(t *testing.T) {
	if got := EstimateCost("some-future-model", 1000, 1000); got != 0 {
		t.Errorf("EstimateCost(unknown) = %v, want 0", got)
	}
}

func TestTrackerRecordTurnAccumulatesTotals(t *testing.T) {
	persist := &fakePersister{}
	tr := NewTracker(persist)

	tr.RecordTurn("anthropic", "claude-sonnet-4", 1000, 500)
	tr.RecordTurn("anthropic", "claude-sonnet-4", 200, 100)
	tr.RecordTurn("openai", "gpt-4o", 300, 150)

	totals := tr.Snapshot()
	if totals.LLMTurns != 3 {
		t.Fatalf("LLMTurns = %d, want 3", totals.LLMTurns)
	}
	if totals.ModelTurns["claude-sonnet-4"] != 2 {
		t.Fatalf("ModelTurns[claude-sonnet-4] = %d, want 2", totals.ModelTurns["claude-sonnet-4"])
	}
	if totals.ModelTurns["gpt-4o"] != 1 {
		t.Fatalf("ModelTurns[gpt-4o] = %d, want 1", totals.ModelTurns["gpt-4o"])
	}
	if totals.SessionCost <= 0 {
		t.Fatalf("SessionCost = %v, want > 0", totals.SessionCost)
	}
	if len(persist.usageRecords) != 3 {
		t.Fatalf("expected 3 persisted usage records, got %d", len(persist.usageRecords))
	}
}

func TestTrackerRecordToolCall(t *testing.T) {
	persist := &fakePersister{}
	tr := NewTracker(persist)

	tr.RecordToolCall("read_file")
	tr.RecordToolCall("read_file")
	tr.RecordToolCall("run_command")

	totals := tr.Snapshot()
	if totals.ToolCalls["read_file"] != 2 {
		t.Fatalf("ToolCalls[read_file] = %d, want 2", totals.ToolCalls["read_file"])
	}
	if totals.ToolCalls["run_command"] != 1 {
		t.Fatalf("ToolCalls[run_command] = %d, want 1", totals.ToolCalls["run_command"])
	}
	if len(persist.toolRecords) != 3 {
		t.Fatalf("expected 3 persisted tool-call records, got %d", len(persist.toolRecords))
	}
}

func TestParseWindowNamedWindows(t *testing.T) {
	for _, name := range []string{"", "today", "24h", "7d", "30d", "all"} {
		if _, err := ParseWindow(name); err != nil {
			t.Errorf("ParseWindow(%q) returned error: %v", name, err)
		}
	}
}

func TestParseWindowISORange(t *testing.T) {
	w, err := ParseWindow("2026-01-01T00:00:00Z/2026-01-31T23:59:59Z")
	if err != nil {
		t.Fatalf("ParseWindow(ISO range): %v", err)
	}
	in := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	out := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if !w.includes(in) {
		t.Error("expected a mid-range timestamp to be included")
	}
	if w.includes(out) {
		t.Error("expected a timestamp after the range to be excluded")
	}
}

func TestParseWindowRejectsGarbage(t *testing.T) {
	if _, err := ParseWindow("not-a-window"); err == nil {
		t.Error("expected an error for an unparseable window")
	}
}

func TestQueryRecordsFiltersByWindow(t *testing.T) {
	now := time.Now()
	records := []Record{
		{Provider: "anthropic", Model: "claude-sonnet-4", InputTokens: 100, CostUSD: 0.01, Timestamp: now.Add(-48 * time.Hour)},
		{Provider: "anthropic", Model: "claude-sonnet-4", InputTokens: 200, CostUSD: 0.02, Timestamp: now},
	}
	toolCalls := []ToolCallRecord{
		{Tool: "old_tool", Timestamp: now.Add(-48 * time.Hour)},
		{Tool: "recent_tool", Timestamp: now},
	}

	totals := QueryRecords(records, toolCalls, WindowLast24h())
	if totals.LLMTurns != 1 {
		t.Fatalf("expected 1 turn within the last 24h, got %d", totals.LLMTurns)
	}
	if totals.ToolCalls["recent_tool"] != 1 {
		t.Fatalf("expected recent_tool counted once, got %d", totals.ToolCalls["recent_tool"])
	}
	if _, ok := totals.ToolCalls["old_tool"]; ok {
		t.Fatal("expected old_tool to be excluded from the 24h window")
	}
}

func TestFormatTokenCount(t *testing.T) {
	tests := []struct {
		count int
		want  string
	}{
		{0, "0"},
		{-10, "0"},
		{500, "500"},
		{1000, "1.0k"},
		{15000, "15k"},
		{1500000, "1.5m"},
	}
	for _, tt := range tests {
		if got := FormatTokenCount(tt.count); got != tt.want {
			t.Errorf("FormatTokenCount(%d) = %q, want %q", tt.count, got, tt.want)
		}
	}
}

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{0, "$0.00"},
		{-1, "$0.00"},
		{0.0099, "$0.0099"},
		{0.12, "$0.12"},
		{1.5, "$1.50"},
	}
	for _, tt := range tests {
		if got := FormatUSD(tt.amount); got != tt.want {
			t.Errorf("FormatUSD(%v) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}

func TestTotalsSummaryIncludesModelAndToolLines(t *testing.T) {
	totals := newTotals()
	totals.SessionCost = 1.23
	totals.LLMTurns = 2
	totals.ModelTurns["claude-sonnet-4"] = 2
	totals.ModelCost["claude-sonnet-4"] = 1.23
	totals.ToolCalls["read_file"] = 1

	summary := totals.Summary()
	if summary == "" {
		t.Fatal("expected non-empty summary")
	}
}
