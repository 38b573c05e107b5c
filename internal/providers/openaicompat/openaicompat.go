// Package openaicompat implements the OpenAI-compatible HTTP provider
// family: POST /chat/completions, SSE streaming with
// stream_options.include_usage, stream forced off whenever tools are
// requested.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/marvin-core/marvin/internal/providers"
	"github.com/marvin-core/marvin/internal/registry"
	"github.com/marvin-core/marvin/pkg/models"
)

// Provider adapts github.com/sashabaranov/go-openai to the common
// providers.Provider contract.
type Provider struct {
	client  *openai.Client
	name    string
	model   string
	baseURL string
	closed  bool
}

// Config configures a new Provider.
type Config struct {
	APIKey  string
	BaseURL string // empty uses the client library's default (api.openai.com)
	Name    string // display name, e.g. "openai"
	Model   string // default model when a request omits one
}

// New constructs an OpenAI-compatible provider. APIKey may be empty only
// when BaseURL points at a server that does not require auth (see
// internal/providers/localserver, which wraps this same client).
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("openaicompat: APIKey or BaseURL is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	return &Provider{
		client:  openai.NewClientWithConfig(clientCfg),
		name:    name,
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
	}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) SupportsTools() bool { return true }

func (p *Provider) Models() []string {
	return []string{"gpt-4o", "gpt-4-turbo", "gpt-4o-mini", "o1", "o1-mini"}
}

// Destroy is a no-op: the go-openai client holds no resources that need
// explicit teardown, but the method is still implemented so the common
// contract's idempotent destroy() holds for every adapter family.
func (p *Provider) Destroy() error {
	p.closed = true
	return nil
}

func (p *Provider) Chat(ctx context.Context, messages []models.Message, opts providers.ChatOptions) (providers.ChatResult, error) {
	if p.closed {
		return providers.ChatResult{}, errors.New("openaicompat: provider destroyed")
	}

	model := opts.Model
	if model == "" {
		model = p.model
	}

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(opts.System, messages),
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if len(opts.Tools) > 0 {
		req.Tools = toOpenAITools(opts.Tools)
	}
	applyExtraBody(&req, opts.ExtraBody, len(opts.Tools) > 0)

	// Stream is coerced off whenever tools are present, regardless of
	// the caller's request: partial tool-call arguments must never be
	// surfaced incrementally.
	stream := opts.Stream && len(opts.Tools) == 0
	if !stream {
		return p.chatNonStreaming(ctx, req)
	}
	return p.chatStreaming(ctx, req, opts.OnDelta)
}

func (p *Provider) chatNonStreaming(ctx context.Context, req openai.ChatCompletionRequest) (providers.ChatResult, error) {
	req.Stream = false
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return providers.ChatResult{}, fmt.Errorf("openaicompat: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return providers.ChatResult{}, errors.New("openaicompat: empty choices in response")
	}
	choice := resp.Choices[0]
	return providers.ChatResult{
		Message: toMessage(choice.Message),
		Usage: providers.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func (p *Provider) chatStreaming(ctx context.Context, req openai.ChatCompletionRequest, onDelta func(string)) (providers.ChatResult, error) {
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return providers.ChatResult{}, fmt.Errorf("openaicompat: create stream: %w", err)
	}
	defer stream.Close()

	var content string
	var usage providers.Usage
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return providers.ChatResult{}, fmt.Errorf("openaicompat: stream recv: %w", err)
		}
		if chunk.Usage != nil {
			usage = providers.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta != "" {
			content += delta
			if onDelta != nil {
				onDelta(delta)
			}
		}
	}

	return providers.ChatResult{
		Message: models.Message{Role: models.RoleAssistant, Content: content, CreatedAt: time.Now()},
		Usage:   usage,
	}, nil
}

func toOpenAIMessages(system string, messages []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		switch m.Role {
		case models.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			if len(m.ToolCalls) > 0 {
				oaiMsg.ToolCalls = make([]openai.ToolCall, len(m.ToolCalls))
				for i, tc := range m.ToolCalls {
					oaiMsg.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					}
				}
			}
			out = append(out, oaiMsg)
		default:
			out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
		}
	}
	return out
}

func toOpenAITools(specs []registry.FunctionSpec) []openai.Tool {
	out := make([]openai.Tool, 0, len(specs))
	for _, s := range specs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Function.Name,
				Description: s.Function.Description,
				Parameters:  s.Function.Parameters,
			},
		})
	}
	return out
}

func toMessage(m openai.ChatCompletionMessage) models.Message {
	out := models.Message{Role: models.RoleAssistant, Content: m.Content, CreatedAt: time.Now()}
	if len(m.ToolCalls) == 0 {
		return out
	}
	out.ToolCalls = make([]models.ToolCall, len(m.ToolCalls))
	for i, tc := range m.ToolCalls {
		out.ToolCalls[i] = models.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
	}
	return out
}

// applyExtraBody injects model-family quirks (e.g. a reasoning model's
// thinking-budget field) without leaking them into the tool schema.
// Suppressed when tools are present.
func applyExtraBody(req *openai.ChatCompletionRequest, extra map[string]any, hasTools bool) {
	if hasTools || len(extra) == 0 {
		return
	}
	if v, ok := extra["reasoning_effort"]; ok {
		if s, ok := v.(string); ok {
			req.ReasoningEffort = s
		} else if n, ok := v.(int); ok {
			req.ReasoningEffort = strconv.Itoa(n)
		}
	}
}
