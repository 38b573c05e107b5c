// Package usage implements the usage tracker: it records per-turn
// (provider, model, inputTokens, outputTokens), derives cost from a
// per-model price table, rolls up session totals, and answers
// time-windowed queries for the `usage` REPL command and the get_usage
// tool.
package usage

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"
)

// ModelPrice is one price-table entry: USD per 1,000,000 tokens.
type ModelPrice struct {
	Input  float64
	Output float64
}

// PriceTable is the single place model prices live. Costs derived from
// it are informational, not authoritative; a model absent from the
// table costs 0.
var PriceTable = map[string]ModelPrice{
	"claude-opus-4":            {Input: 15.00, Output: 75.00},
	"claude-sonnet-4":          {Input: 3.00, Output: 15.00},
	"claude-haiku-4":           {Input: 0.80, Output: 4.00},
	"claude-sonnet-4-20250514": {Input: 3.00, Output: 15.00},
	"gpt-4o":                   {Input: 2.50, Output: 10.00},
	"gpt-4o-mini":              {Input: 0.15, Output: 0.60},
	"gpt-4.1":                  {Input: 2.00, Output: 8.00},
	"gpt-4.1-mini":             {Input: 0.40, Output: 1.60},
	"o4-mini":                  {Input: 1.10, Output: 4.40},
}

// EstimateCost derives the cost for one turn. Unknown models cost 0.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	price, ok := PriceTable[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)*price.Input/1_000_000 + float64(outputTokens)*price.Output/1_000_000
}

// Record is one persisted line of profiles/<name>/usage.jsonl.
type Record struct {
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	Timestamp    time.Time `json:"timestamp"`
}

// ToolCallRecord is one persisted line of profiles/<name>/tool-calls.jsonl.
type ToolCallRecord struct {
	Tool      string    `json:"tool"`
	Timestamp time.Time `json:"timestamp"`
}

// Totals is a session (or windowed) rollup: cost, LLM turns, per-model
// turn counts and costs, per-tool call counts.
type Totals struct {
	SessionCost float64            `json:"session_cost"`
	LLMTurns    int                `json:"llm_turns"`
	ModelTurns  map[string]int     `json:"model_turns"`
	ModelCost   map[string]float64 `json:"model_cost"`
	ToolCalls   map[string]int     `json:"tool_calls"`
}

func newTotals() Totals {
	return Totals{
		ModelTurns: map[string]int{},
		ModelCost:  map[string]float64{},
		ToolCalls:  map[string]int{},
	}
}

func (t *Totals) addRecord(r Record) {
	t.SessionCost += r.CostUSD
	t.LLMTurns++
	t.ModelTurns[r.Model]++
	t.ModelCost[r.Model] += r.CostUSD
}

func (t *Totals) addToolCall(r ToolCallRecord) {
	t.ToolCalls[r.Tool]++
}

// Persister is how a Tracker durably appends records; internal/profile's
// Profile implements it via AppendUsageRecord/AppendToolCallRecord.
type Persister interface {
	AppendUsageRecord(v any) error
	AppendToolCallRecord(v any) error
}

// Tracker accumulates in-memory session totals and optionally persists
// each record through a Persister.
type Tracker struct {
	mu        sync.Mutex
	persist   Persister
	records   []Record
	toolCalls []ToolCallRecord
	totals    Totals
}

// NewTracker builds a Tracker. persist may be nil, in which case
// records are kept in memory only.
func NewTracker(persist Persister) *Tracker {
	return &Tracker{persist: persist, totals: newTotals()}
}

// SetPersister swaps where future records are appended. The in-memory
// session totals are unaffected; they span profile switches.
func (t *Tracker) SetPersister(persist Persister) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.persist = persist
}

// RecordTurn records one LLM turn and returns the record written.
func (t *Tracker) RecordTurn(provider, model string, inputTokens, outputTokens int) Record {
	r := Record{
		Provider:     provider,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      EstimateCost(model, inputTokens, outputTokens),
		Timestamp:    time.Now(),
	}

	t.mu.Lock()
	t.records = append(t.records, r)
	t.totals.addRecord(r)
	persist := t.persist
	t.mu.Unlock()

	if persist != nil {
		_ = persist.AppendUsageRecord(r)
	}
	return r
}

// RecordToolCall records one tool invocation.
func (t *Tracker) RecordToolCall(tool string) ToolCallRecord {
	r := ToolCallRecord{Tool: tool, Timestamp: time.Now()}

	t.mu.Lock()
	t.toolCalls = append(t.toolCalls, r)
	t.totals.addToolCall(r)
	persist := t.persist
	t.mu.Unlock()

	if persist != nil {
		_ = persist.AppendToolCallRecord(r)
	}
	return r
}

// Snapshot returns the in-memory session totals accumulated so far,
// used for the `MARVIN_COST:<json>` stderr sentinel on exit.
func (t *Tracker) Snapshot() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return cloneTotals(t.totals)
}

func cloneTotals(in Totals) Totals {
	out := newTotals()
	out.SessionCost = in.SessionCost
	out.LLMTurns = in.LLMTurns
	for k, v := range in.ModelTurns {
		out.ModelTurns[k] = v
	}
	for k, v := range in.ModelCost {
		out.ModelCost[k] = v
	}
	for k, v := range in.ToolCalls {
		out.ToolCalls[k] = v
	}
	return out
}

// Window names the span a usage query covers: today, 24h, 7d, 30d,
// all, or an ISO range.
type Window struct {
	name string
	from time.Time
	to   time.Time
}

func WindowToday() Window {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return Window{name: "today", from: start, to: now}
}

func WindowLast24h() Window {
	now := time.Now()
	return Window{name: "24h", from: now.Add(-24 * time.Hour), to: now}
}

func WindowLast7d() Window {
	now := time.Now()
	return Window{name: "7d", from: now.Add(-7 * 24 * time.Hour), to: now}
}

func WindowLast30d() Window {
	now := time.Now()
	return Window{name: "30d", from: now.Add(-30 * 24 * time.Hour), to: now}
}

func WindowAll() Window {
	return Window{name: "all"}
}

// WindowISORange parses an inclusive "<from>/<to>" ISO-8601 range
// string, e.g. "2026-01-01T00:00:00Z/2026-01-31T23:59:59Z".
func WindowISORange(spec string) (Window, error) {
	parts := strings.SplitN(spec, "/", 2)
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("usage: ISO range must be <from>/<to>, got %q", spec)
	}
	from, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[0]))
	if err != nil {
		return Window{}, fmt.Errorf("usage: parse range start: %w", err)
	}
	to, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[1]))
	if err != nil {
		return Window{}, fmt.Errorf("usage: parse range end: %w", err)
	}
	return Window{name: spec, from: from, to: to}, nil
}

// ParseWindow maps the get_usage tool's / `usage` command's window
// argument to a Window.
func ParseWindow(name string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "today":
		return WindowToday(), nil
	case "24h":
		return WindowLast24h(), nil
	case "7d":
		return WindowLast7d(), nil
	case "30d":
		return WindowLast30d(), nil
	case "all":
		return WindowAll(), nil
	default:
		return WindowISORange(name)
	}
}

func (w Window) includes(ts time.Time) bool {
	if w.name == "all" {
		return true
	}
	if !w.from.IsZero() && ts.Before(w.from) {
		return false
	}
	if !w.to.IsZero() && ts.After(w.to) {
		return false
	}
	return true
}

// QueryRecords filters persisted usage/tool-call records down to a
// Window and rolls them up into Totals, for the get_usage tool to read
// across sessions.
func QueryRecords(records []Record, toolCalls []ToolCallRecord, w Window) Totals {
	totals := newTotals()
	for _, r := range records {
		if w.includes(r.Timestamp) {
			totals.addRecord(r)
		}
	}
	for _, tc := range toolCalls {
		if w.includes(tc.Timestamp) {
			totals.addToolCall(tc)
		}
	}
	return totals
}

// ReadUsageLog reads every Record from a usage.jsonl file, tolerating a
// missing file (no usage recorded yet).
func ReadUsageLog(path string) ([]Record, error) {
	return readJSONLines[Record](path)
}

// ReadToolCallLog reads every ToolCallRecord from a tool-calls.jsonl file.
func ReadToolCallLog(path string) ([]ToolCallRecord, error) {
	return readJSONLines[ToolCallRecord](path)
}

func readJSONLines[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []T
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			return nil, fmt.Errorf("usage: parse %s: %w", path, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// FormatTokenCount formats a token count for the `usage` REPL command
// and the get_usage tool's textual summary.
func FormatTokenCount(count int) string {
	if count <= 0 {
		return "0"
	}
	if count >= 1_000_000 {
		return fmt.Sprintf("%.1fm", float64(count)/1_000_000)
	}
	if count >= 10_000 {
		return fmt.Sprintf("%dk", count/1_000)
	}
	if count >= 1_000 {
		return fmt.Sprintf("%.1fk", float64(count)/1_000)
	}
	return fmt.Sprintf("%d", count)
}

// FormatUSD formats a dollar amount for display.
func FormatUSD(amount float64) string {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "$0.00"
	}
	if amount >= 0.01 {
		return fmt.Sprintf("$%.2f", amount)
	}
	return fmt.Sprintf("$%.4f", amount)
}

// Summary renders the Totals as the multi-line text the `usage` REPL
// command prints.
func (t Totals) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "session cost: %s across %d turn(s)\n", FormatUSD(t.SessionCost), t.LLMTurns)
	for model, turns := range t.ModelTurns {
		fmt.Fprintf(&b, "  %s: %d turn(s), %s\n", model, turns, FormatUSD(t.ModelCost[model]))
	}
	for tool, count := range t.ToolCalls {
		fmt.Fprintf(&b, "  tool %s: %d call(s)\n", tool, count)
	}
	return strings.TrimRight(b.String(), "\n")
}
