// Package providers declares the common adapter contract shared by the
// three provider families: OpenAI-compatible HTTP, local-server, and
// vendor SDK.
package providers

import (
	"context"

	"github.com/marvin-core/marvin/internal/registry"
	"github.com/marvin-core/marvin/pkg/models"
)

// ChatOptions configures one chat call.
type ChatOptions struct {
	// Stream requests incremental text deltas via callbacks. The loop
	// coerces this to false whenever Tools is non-empty, because partial
	// tool-call argument JSON is unsafe to surface incrementally.
	Stream bool
	Tools  []registry.FunctionSpec

	// ExtraBody carries provider- or model-family-specific fields (e.g. a
	// reasoning model's thinking-budget knob) without leaking into the
	// common contract or into tool definitions.
	ExtraBody map[string]any

	Model     string
	System    string
	MaxTokens int

	// OnDelta is invoked for every streamed text fragment. Nil if the
	// caller does not want incremental output.
	OnDelta func(text string)
}

// Usage is the per-call token accounting the loop sums across rounds.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ChatResult is the contract every adapter's Chat call returns.
type ChatResult struct {
	Message models.Message
	Usage   Usage
}

// Provider is the common adapter contract. Implementations must be safe
// for concurrent use; the loop may call Chat from multiple sessions.
type Provider interface {
	// Chat drives one round-trip: a single assistant turn, with zero or
	// more tool calls, given the full message history.
	Chat(ctx context.Context, messages []models.Message, opts ChatOptions) (ChatResult, error)

	// Name identifies the provider for display and API-key resolution.
	Name() string

	// Models lists the model identifiers this provider family exposes.
	Models() []string

	// SupportsTools reports whether this provider/model combination can
	// take a Tools list at all.
	SupportsTools() bool

	// Destroy releases any held resources (HTTP transports, SDK
	// sessions, listeners). Idempotent: calling it more than once is a
	// no-op.
	Destroy() error
}

// DefaultTimeoutSeconds is the timeout value for interactive chat turns.
// No adapter or caller in this module reads it: Chat calls are bounded
// only by the context the caller passes.
const DefaultTimeoutSeconds = 300

// CodingModeTimeoutSeconds is the timeout value for coding-mode turns
// that may stream large tool-result contexts. Like DefaultTimeoutSeconds,
// it is not applied by any adapter.
const CodingModeTimeoutSeconds = 900
