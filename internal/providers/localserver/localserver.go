// Package localserver implements the local-server provider family: the
// same OpenAI-compatible schema as internal/providers/openaicompat, but
// pointed at a self-hosted base URL with no auth header required.
package localserver

import (
	"context"

	"github.com/marvin-core/marvin/internal/providers"
	"github.com/marvin-core/marvin/internal/providers/openaicompat"
	"github.com/marvin-core/marvin/pkg/models"
)

// Provider delegates to openaicompat.Provider, overriding only its name
// and the no-auth default; the wire format is identical.
type Provider struct {
	inner *openaicompat.Provider
	name  string
}

// Config configures a local-server provider.
type Config struct {
	BaseURL string // required, e.g. "http://localhost:11434/v1"
	Name    string // display name, e.g. "ollama" or "lmstudio"
	Model   string
}

// New constructs a local-server provider. No API key is required; some
// local servers still expect a non-empty Authorization header, so the
// underlying client is given a placeholder key that the server ignores.
func New(cfg Config) (*Provider, error) {
	name := cfg.Name
	if name == "" {
		name = "local"
	}
	inner, err := openaicompat.New(openaicompat.Config{
		APIKey:  "local-server-no-auth",
		BaseURL: cfg.BaseURL,
		Name:    name,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{inner: inner, name: name}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) SupportsTools() bool { return p.inner.SupportsTools() }

func (p *Provider) Models() []string { return p.inner.Models() }

func (p *Provider) Destroy() error { return p.inner.Destroy() }

func (p *Provider) Chat(ctx context.Context, messages []models.Message, opts providers.ChatOptions) (providers.ChatResult, error) {
	return p.inner.Chat(ctx, messages, opts)
}
