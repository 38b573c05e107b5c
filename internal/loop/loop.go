// Package loop implements the agent loop / provider router: it drives a
// provider through repeated model-turn/tool-turn rounds until a final
// text turn or the round cap is hit, executing each round's tool calls
// concurrently while keeping their results in request order.
package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/marvin-core/marvin/internal/budget"
	"github.com/marvin-core/marvin/internal/compactor"
	"github.com/marvin-core/marvin/internal/providers"
	"github.com/marvin-core/marvin/internal/registry"
	"github.com/marvin-core/marvin/pkg/models"
)

// DefaultRoundCap is the per-submission round limit.
const DefaultRoundCap = 15

// Callbacks are the streaming hooks the router emits during a run. Any
// may be nil. OnDelta never interleaves with OnToolCall from the same
// round.
type Callbacks struct {
	// OnDelta fires for every text fragment yielded during a streamed
	// text round.
	OnDelta func(text string)

	// OnToolCall fires exactly once per round that contains tool calls,
	// with the tool names in request order.
	OnToolCall func(names []string)

	// OnError fires on non-recoverable failures.
	OnError func(err error)
}

// Result is what one Run call returns.
type Result struct {
	Message models.Message
	Usage   providers.Usage
}

// Config bundles the collaborators a Run needs.
type Config struct {
	Provider   providers.Provider
	Registry   *registry.Registry
	ToolDefs   []*registry.ToolDef // the mode-filtered tool list for this submission
	ToolCtx    *registry.ToolContext
	Gate       *registry.TicketGate
	Thresholds budget.Thresholds
	Summarizer compactor.Summarizer
	Backup     compactor.BackupWriter
	RoundCap   int // 0 uses DefaultRoundCap
}

// Run drives messages through rounds until a final text turn, the round
// cap, or a hard budget failure.
func Run(ctx context.Context, cfg Config, messages []models.Message, cb Callbacks) (Result, []models.Message, error) {
	roundCap := cfg.RoundCap
	if roundCap <= 0 {
		roundCap = DefaultRoundCap
	}

	total := providers.Usage{}
	history := messages

	for round := 0; round <= roundCap; round++ {
		select {
		case <-ctx.Done():
			emitErr(cb, ctx.Err())
			return Result{}, history, ctx.Err()
		default:
		}

		forceFinal := round == roundCap
		tools := cfg.ToolDefs
		if forceFinal {
			// Round-cap-plus-one iteration: force a toolless call so the
			// model must emit final text.
			tools = nil
		}

		newHistory, err := preCallBudgetCheck(ctx, cfg, history)
		if err != nil {
			emitErr(cb, err)
			return Result{}, history, err
		}
		history = newHistory

		specs := registry.FunctionSpecs(tools)
		streamRequested := len(specs) == 0

		var deltaBuf strings.Builder
		onDelta := func(text string) {
			deltaBuf.WriteString(text)
			if cb.OnDelta != nil {
				cb.OnDelta(text)
			}
		}

		res, err := cfg.Provider.Chat(ctx, history, providers.ChatOptions{
			Stream:  streamRequested,
			Tools:   specs,
			OnDelta: onDelta,
		})
		if err != nil {
			emitErr(cb, err)
			return Result{}, history, err
		}

		total.InputTokens += res.Usage.InputTokens
		total.OutputTokens += res.Usage.OutputTokens

		assistant := normalizeToolCallIDs(res.Message, round)

		if len(assistant.ToolCalls) == 0 || forceFinal {
			history = append(history, assistant)
			return Result{Message: assistant, Usage: total}, history, nil
		}

		names := make([]string, len(assistant.ToolCalls))
		for i, tc := range assistant.ToolCalls {
			names[i] = tc.Name
		}
		if cb.OnToolCall != nil {
			cb.OnToolCall(names)
		}

		history = append(history, assistant)

		results := executeRound(ctx, cfg, assistant.ToolCalls)
		for i, tc := range assistant.ToolCalls {
			r := results[i]
			usedTokens, _ := budget.Estimate(history)
			truncated := budget.TruncateResult(r.Content, usedTokens, cfg.Thresholds.Hard)
			toolMsg := models.Message{
				Role:       models.RoleTool,
				Content:    truncated,
				ToolCallID: tc.ID,
				Name:       tc.Name,
			}
			history = append(history, toolMsg)
		}
	}

	err := fmt.Errorf("agent loop: exhausted round cap of %d without a final turn", roundCap)
	emitErr(cb, err)
	return Result{}, history, err
}

// preCallBudgetCheck runs the pre-call budget ladder: on COMPACT, invoke
// the compactor and replace messages; on HARD without successful
// compaction, fail.
func preCallBudgetCheck(ctx context.Context, cfg Config, messages []models.Message) ([]models.Message, error) {
	tokens, err := budget.Estimate(messages)
	if err != nil {
		return nil, fmt.Errorf("loop: estimate tokens: %w", err)
	}

	level := cfg.Thresholds.Classify(tokens)
	if level == budget.LevelWarn {
		slog.Warn("context budget approaching compaction threshold",
			"tokens", tokens, "warn", cfg.Thresholds.Warn, "compact", cfg.Thresholds.Compact)
	}
	if level < budget.LevelCompact {
		return messages, nil
	}

	compacted, err := compactor.Compact(ctx, messages, cfg.Summarizer, cfg.Backup)
	if err != nil {
		if level >= budget.LevelHard {
			return nil, fmt.Errorf("loop: over HARD threshold and compaction failed: %w", err)
		}
		return messages, nil
	}

	newTokens, err := budget.Estimate(compacted)
	if err == nil && cfg.Thresholds.Classify(newTokens) >= budget.LevelHard {
		return nil, fmt.Errorf("loop: history remains over HARD threshold after compaction")
	}
	return compacted, nil
}

// executeRound runs every tool call in the round concurrently, placing
// results at their originating index so the caller can append them in
// request order regardless of completion order.
func executeRound(ctx context.Context, cfg Config, calls []models.ToolCall) []models.ToolResult {
	results := make([]models.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc models.ToolCall) {
			defer wg.Done()
			results[idx] = cfg.Registry.Execute(ctx, tc, cfg.ToolCtx, cfg.Gate)
		}(i, call)
	}
	wg.Wait()
	return results
}

// normalizeToolCallIDs applies the fence-stripping and id-synthesis edge
// cases to one assistant turn: duplicate or missing tool-call ids are
// replaced with a deterministic round:index id so later result
// correlation still works.
func normalizeToolCallIDs(msg models.Message, round int) models.Message {
	if len(msg.ToolCalls) == 0 {
		return msg
	}
	seen := make(map[string]bool, len(msg.ToolCalls))
	out := msg
	out.ToolCalls = make([]models.ToolCall, len(msg.ToolCalls))
	for i, tc := range msg.ToolCalls {
		tc.Arguments = stripJSONFence(tc.Arguments)
		if tc.ID == "" || seen[tc.ID] {
			slog.Warn("synthesizing tool-call id", "tool", tc.Name, "round", round, "index", i)
			tc.ID = fmt.Sprintf("%d:%d", round, i)
		}
		seen[tc.ID] = true
		out.ToolCalls[i] = tc
	}
	return out
}

// stripJSONFence removes a single leading/trailing ```json (or bare ```)
// fence some models wrap tool-call arguments in before the registry
// attempts to parse them.
func stripJSONFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return raw
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

// LooksLikeJSONEnvelope is the streamed-text pre-buffer check: a leading
// sequence that looks like JSON may actually be the model's final prose.
// It reports true only if the buffer both starts with a brace and fully
// parses as a JSON object. Nothing in this module calls it; Run does no
// pre-buffering of streamed text.
func LooksLikeJSONEnvelope(buf string) bool {
	trimmed := strings.TrimSpace(buf)
	if trimmed == "" || trimmed[0] != '{' {
		return false
	}
	var v map[string]any
	return json.Unmarshal([]byte(trimmed), &v) == nil
}

func emitErr(cb Callbacks, err error) {
	if cb.OnError != nil && err != nil {
		cb.OnError(err)
	}
}
