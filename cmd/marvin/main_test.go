package main

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/marvin-core/marvin/internal/profile"
	"github.com/marvin-core/marvin/pkg/models"
)

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", "fallback"); got != "fallback" {
		t.Fatalf("expected the first non-blank value, got %q", got)
	}
	if got := firstNonEmpty("explicit", "fallback"); got != "explicit" {
		t.Fatalf("expected the earlier value to win, got %q", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Fatalf("expected an empty result when every value is blank, got %q", got)
	}
}

func TestBuildProviderUnknownName(t *testing.T) {
	if _, _, err := buildProvider("carrier-pigeon", ""); err == nil {
		t.Fatal("expected an error for an unknown provider name")
	}
}

func TestBuildProviderAnthropicRequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, _, err := buildProvider("anthropic", ""); err == nil {
		t.Fatal("expected an error when ANTHROPIC_API_KEY is unset")
	}
}

func TestBuildProviderAnthropicDefaultModel(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	p, model, err := buildProvider("anthropic", "")
	if err != nil {
		t.Fatalf("buildProvider: %v", err)
	}
	if model != "claude-sonnet-4-20250514" {
		t.Fatalf("expected the default anthropic model, got %q", model)
	}
	if p.Name() != "anthropic" {
		t.Fatalf("expected the anthropic provider name, got %q", p.Name())
	}
}

func TestBuildProviderLocalServerDefaultsBaseURL(t *testing.T) {
	t.Setenv("MARVIN_LOCAL_BASE_URL", "")
	p, model, err := buildProvider("local-server", "llama3:70b")
	if err != nil {
		t.Fatalf("buildProvider: %v", err)
	}
	if model != "llama3:70b" {
		t.Fatalf("expected the requested model to pass through, got %q", model)
	}
	if p == nil {
		t.Fatal("expected a non-nil local-server provider")
	}
}

func TestPromptGlyph(t *testing.T) {
	if promptGlyph(false) != "> " {
		t.Fatalf("expected the plain glyph, got %q", promptGlyph(false))
	}
	if promptGlyph(true) == promptGlyph(false) {
		t.Fatal("expected the curses glyph to differ from the plain one")
	}
}

func TestRecordNtfySubscriptionDedupes(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	prof, err := profile.Load("test")
	if err != nil {
		t.Fatalf("profile.Load: %v", err)
	}

	if err := recordNtfySubscription(prof, "marvin-alerts"); err != nil {
		t.Fatalf("recordNtfySubscription: %v", err)
	}
	if err := recordNtfySubscription(prof, "marvin-alerts"); err != nil {
		t.Fatalf("recordNtfySubscription (second): %v", err)
	}

	data, err := os.ReadFile(prof.NtfySubscriptionsPath())
	if err != nil {
		t.Fatalf("read subscriptions file: %v", err)
	}
	var subs []models.NtfySubscription
	if err := json.Unmarshal(data, &subs); err != nil {
		t.Fatalf("unmarshal subscriptions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected the duplicate subscription to be a no-op, got %d entries", len(subs))
	}
	if subs[0].Topic != "marvin-alerts" {
		t.Fatalf("unexpected topic %q", subs[0].Topic)
	}
}

func TestModeValidation(t *testing.T) {
	for _, m := range []string{"surf", "coding", "lockin"} {
		mode := models.Mode(strings.ToLower(m))
		switch mode {
		case models.ModeSurf, models.ModeCoding, models.ModeLockin:
		default:
			t.Fatalf("expected %q to be a recognized mode", m)
		}
	}
}
