// Package notify implements notify_subscribe and notify_send:
// subscribing the active profile to an ntfy.sh-style push topic and
// posting a message to it. Same shape as internal/tools/websearch: a
// Config struct, a single *http.Client, and a rate limiter shared
// across the tool's calls so a misbehaving model can't hammer the push
// endpoint.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/marvin-core/marvin/internal/profile"
	"github.com/marvin-core/marvin/internal/registry"
	"github.com/marvin-core/marvin/pkg/models"
)

// Config controls the push backend and send defaults.
type Config struct {
	DefaultServer string // e.g. "https://ntfy.sh"
	RatePerSecond float64
	Client        *http.Client
}

func (c Config) withDefaults() Config {
	if c.DefaultServer == "" {
		c.DefaultServer = "https://ntfy.sh"
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 1
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return c
}

// Defs returns the notify tool definitions, ready to register.
func Defs(cfg Config) []*registry.ToolDef {
	cfg = cfg.withDefaults()
	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	return []*registry.ToolDef{
		subscribeDef(cfg),
		sendDef(cfg, limiter),
	}
}

func subscribeDef(cfg Config) *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "notify_subscribe",
		Description: "Subscribe the active profile to a push-notification topic.",
		Category:    registry.CategoryAlways,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"topic":  map[string]any{"type": "string"},
				"server": map[string]any{"type": "string", "description": "Push server base URL; defaults to " + cfg.DefaultServer + "."},
			},
			"required": []string{"topic"},
		},
		Handler: func(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
			return subscribe(ctx, cfg, tc, args)
		},
	}
}

func sendDef(cfg Config, limiter *rate.Limiter) *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "notify_send",
		Description: "Send a push notification to a subscribed topic.",
		Category:    registry.CategoryAlways,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"topic":   map[string]any{"type": "string"},
				"message": map[string]any{"type": "string"},
				"title":   map[string]any{"type": "string"},
			},
			"required": []string{"topic", "message"},
		},
		Handler: func(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
			return send(ctx, cfg, limiter, args)
		},
	}
}

func subscribe(ctx context.Context, cfg Config, tc *registry.ToolContext, args map[string]any) (string, error) {
	topic, _ := args["topic"].(string)
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "Error: topic is required", nil
	}
	server, _ := args["server"].(string)
	if strings.TrimSpace(server) == "" {
		server = cfg.DefaultServer
	}

	prof, ok := tc.Profile.(*profile.Profile)
	if !ok || prof == nil {
		return "Error: no active profile to subscribe against", nil
	}

	path := prof.NtfySubscriptionsPath()
	var subs []models.NtfySubscription
	if data, err := os.ReadFile(path); err == nil && len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &subs); err != nil {
			return fmt.Sprintf("Error: read ntfy subscriptions: %v", err), nil
		}
	} else if err != nil && !os.IsNotExist(err) {
		return fmt.Sprintf("Error: read ntfy subscriptions: %v", err), nil
	}

	for _, s := range subs {
		if s.Topic == topic && s.Server == server {
			return fmt.Sprintf("Already subscribed to %s on %s", topic, server), nil
		}
	}
	subs = append(subs, models.NtfySubscription{Topic: topic, Server: server, AddedAt: time.Now()})

	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error: encode ntfy subscriptions: %v", err), nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Sprintf("Error: write ntfy subscriptions: %v", err), nil
	}
	return fmt.Sprintf("Subscribed to %s on %s", topic, server), nil
}

func send(ctx context.Context, cfg Config, limiter *rate.Limiter, args map[string]any) (string, error) {
	topic, _ := args["topic"].(string)
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "Error: topic is required", nil
	}
	message, _ := args["message"].(string)
	if strings.TrimSpace(message) == "" {
		return "Error: message is required", nil
	}
	title, _ := args["title"].(string)

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}

	url := strings.TrimRight(cfg.DefaultServer, "/") + "/" + topic
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Sprintf("Error: build notify request: %v", err), nil
	}
	if title != "" {
		req.Header.Set("Title", title)
	}
	resp, err := cfg.Client.Do(req)
	if err != nil {
		return fmt.Sprintf("Error: send notification: %v", err), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Sprintf("Error: push server returned status %d", resp.StatusCode), nil
	}
	return fmt.Sprintf("Sent notification to %s", topic), nil
}
