// Package vendorsdk implements the vendor-SDK provider family:
// Anthropic's client library, with the transport acquired lazily and
// one stream consumed per round rather than a long-lived listener per
// request.
package vendorsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/marvin-core/marvin/internal/providers"
	"github.com/marvin-core/marvin/internal/registry"
	"github.com/marvin-core/marvin/pkg/models"
)

const defaultMaxTokens = 4096

// Provider adapts the Anthropic SDK to the common providers.Provider
// contract.
type Provider struct {
	mu     sync.Mutex
	client *anthropic.Client
	model  string

	// destroyed tracks whether Destroy has run, so a second call is a
	// no-op rather than tearing down an already-released client.
	destroyed bool
}

// Config configures a new Provider.
type Config struct {
	APIKey string
	Model  string // default model, e.g. "claude-sonnet-4-20250514"
}

// New constructs a vendor-SDK provider. The underlying client acquires
// its transport lazily on first use; no network call happens here.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("vendorsdk: APIKey is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Provider{client: &client, model: cfg.Model}, nil
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) SupportsTools() bool { return true }

func (p *Provider) Models() []string {
	return []string{"claude-opus-4", "claude-sonnet-4", "claude-haiku-4"}
}

// Destroy clears the held client reference. Idempotent: a second call
// finds destroyed already true and returns immediately.
func (p *Provider) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return nil
	}
	p.destroyed = true
	p.client = nil
	return nil
}

func (p *Provider) Chat(ctx context.Context, messages []models.Message, opts providers.ChatOptions) (providers.ChatResult, error) {
	p.mu.Lock()
	client := p.client
	destroyed := p.destroyed
	p.mu.Unlock()
	if destroyed || client == nil {
		return providers.ChatResult{}, errors.New("vendorsdk: provider destroyed")
	}

	model := opts.Model
	if model == "" {
		model = p.model
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  toAnthropicMessages(messages),
		MaxTokens: int64(maxTokens),
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.System}}
	}
	if len(opts.Tools) > 0 {
		params.Tools = toAnthropicTools(opts.Tools)
	}

	// Streaming is only meaningful for toolless rounds; when tools are
	// present the adapter always takes the non-streaming path regardless
	// of opts.Stream.
	if opts.Stream && len(opts.Tools) == 0 {
		return p.chatStreaming(ctx, params, opts.OnDelta)
	}
	return p.chatNonStreaming(ctx, params)
}

func (p *Provider) chatNonStreaming(ctx context.Context, params anthropic.MessageNewParams) (providers.ChatResult, error) {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return providers.ChatResult{}, fmt.Errorf("vendorsdk: create message: %w", err)
	}
	return toChatResult(msg), nil
}

// chatStreaming consumes the SDK's SSE stream. The Provider holds no
// long-lived listener across calls; this per-round stream is opened and
// fully drained before returning, so listeners cannot accumulate.
func (p *Provider) chatStreaming(ctx context.Context, params anthropic.MessageNewParams, onDelta func(string)) (providers.ChatResult, error) {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	stream := client.Messages.NewStreaming(ctx, params)

	var content strings.Builder
	var toolCalls []models.ToolCall
	var currentTool *models.ToolCall
	var currentInput strings.Builder
	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			inputTokens = int(start.Message.Usage.InputTokens)
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentTool = &models.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentInput.Reset()
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					content.WriteString(delta.Text)
					if onDelta != nil {
						onDelta(delta.Text)
					}
				}
			case "input_json_delta":
				currentInput.WriteString(delta.PartialJSON)
			}
		case "content_block_stop":
			if currentTool != nil {
				currentTool.Arguments = currentInput.String()
				toolCalls = append(toolCalls, *currentTool)
				currentTool = nil
			}
		case "message_delta":
			usage := event.AsMessageDelta().Usage
			if usage.OutputTokens > 0 {
				outputTokens = int(usage.OutputTokens)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return providers.ChatResult{}, fmt.Errorf("vendorsdk: stream: %w", err)
	}

	return providers.ChatResult{
		Message: models.Message{
			Role:      models.RoleAssistant,
			Content:   content.String(),
			ToolCalls: toolCalls,
		},
		Usage: providers.Usage{InputTokens: inputTokens, OutputTokens: outputTokens},
	}, nil
}

func toChatResult(msg *anthropic.Message) providers.ChatResult {
	var content strings.Builder
	var toolCalls []models.ToolCall
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.AsText().Text)
		case "tool_use":
			tu := block.AsToolUse()
			argsJSON := string(tu.Input)
			if argsJSON == "" {
				argsJSON = "{}"
			}
			toolCalls = append(toolCalls, models.ToolCall{ID: tu.ID, Name: tu.Name, Arguments: argsJSON})
		}
	}
	return providers.ChatResult{
		Message: models.Message{
			Role:      models.RoleAssistant,
			Content:   content.String(),
			ToolCalls: toolCalls,
		},
		Usage: providers.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
}

func toAnthropicMessages(messages []models.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			// Anthropic carries the system prompt out of band; a system
			// message mid-history (e.g. a compaction summary) is folded
			// into the conversation as a user-visible note instead of
			// being dropped.
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case models.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case models.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, rawArgs(tc.Arguments), tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case models.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return out
}

func rawArgs(args string) any {
	if args == "" {
		return map[string]any{}
	}
	return json.RawMessage(args)
}

func toAnthropicTools(specs []registry.FunctionSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, s := range specs {
		out = append(out, anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: s.Function.Parameters["properties"],
		}, s.Function.Name))
		out[len(out)-1].OfTool.Description = anthropic.String(s.Function.Description)
	}
	return out
}
