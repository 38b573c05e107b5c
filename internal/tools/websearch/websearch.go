// Package websearch implements web_search (against a SearXNG-compatible
// JSON backend) and fetch_url (HTTP GET plus a lightweight HTML-to-text
// strip). Both tools make outbound HTTP requests a misbehaving model
// could hammer, so they share a token-bucket rate limiter.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/marvin-core/marvin/internal/registry"
)

// Config controls the search backend and fetch defaults.
type Config struct {
	SearchEndpoint string // SearXNG-compatible JSON search endpoint.
	DefaultResults int
	MaxFetchChars  int
	RatePerSecond  float64
	Client         *http.Client
}

func (c Config) withDefaults() Config {
	if c.DefaultResults <= 0 {
		c.DefaultResults = 5
	}
	if c.MaxFetchChars <= 0 {
		c.MaxFetchChars = 10_000
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 1
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 15 * time.Second}
	}
	return c
}

// SearchResult is one result from web_search.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Defs returns the web tool definitions, ready to register.
func Defs(cfg Config) []*registry.ToolDef {
	cfg = cfg.withDefaults()
	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	return []*registry.ToolDef{
		webSearchDef(cfg, limiter),
		fetchURLDef(cfg, limiter),
	}
}

func webSearchDef(cfg Config, limiter *rate.Limiter) *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "web_search",
		Description: "Search the web and return a short list of results (title, url, snippet).",
		Category:    registry.CategoryAlways,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":        map[string]any{"type": "string"},
				"result_count": map[string]any{"type": "integer", "minimum": 1, "maximum": 20},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
			return webSearch(ctx, cfg, limiter, args)
		},
	}
}

func webSearch(ctx context.Context, cfg Config, limiter *rate.Limiter, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "Error: query is required", nil
	}
	if cfg.SearchEndpoint == "" {
		return "Error: no search backend is configured", nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return "Error: " + err.Error(), nil
	}

	count := cfg.DefaultResults
	if n, ok := args["result_count"].(float64); ok && n > 0 {
		count = int(n)
	}

	endpoint := fmt.Sprintf("%s?q=%s&format=json", cfg.SearchEndpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	resp, err := cfg.Client.Do(req)
	if err != nil {
		return "Error: search request failed: " + err.Error(), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Error: search backend returned HTTP %d", resp.StatusCode), nil
	}

	var parsed struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "Error: parse search response: " + err.Error(), nil
	}
	results := parsed.Results
	if len(results) > count {
		results = results[:count]
	}

	payload, err := json.MarshalIndent(map[string]any{
		"query":   query,
		"results": results,
	}, "", "  ")
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	return string(payload), nil
}

func fetchURLDef(cfg Config, limiter *rate.Limiter) *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "fetch_url",
		Description: "Fetch a URL and return its extracted text content, truncated to a character limit.",
		Category:    registry.CategoryAlways,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url":       map[string]any{"type": "string", "description": "http/https URL to fetch."},
				"max_chars": map[string]any{"type": "integer", "minimum": 0},
			},
			"required": []string{"url"},
		},
		Handler: func(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
			return fetchURL(ctx, cfg, limiter, args)
		},
	}
}

func fetchURL(ctx context.Context, cfg Config, limiter *rate.Limiter, args map[string]any) (string, error) {
	rawURL, _ := args["url"].(string)
	if strings.TrimSpace(rawURL) == "" {
		return "Error: url is required", nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "Error: url must be an http or https URL", nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return "Error: " + err.Error(), nil
	}

	limit := cfg.MaxFetchChars
	if n, ok := args["max_chars"].(float64); ok && n > 0 {
		limit = int(n)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	resp, err := cfg.Client.Do(req)
	if err != nil {
		return "Error: fetch failed: " + err.Error(), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Error: fetch returned HTTP %d", resp.StatusCode), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(10*limit+1024)))
	if err != nil {
		return "Error: read response body: " + err.Error(), nil
	}

	content := extractText(string(body))
	truncated := false
	if limit > 0 && len(content) > limit {
		content = content[:limit]
		truncated = true
	}

	payload, err := json.MarshalIndent(map[string]any{
		"url":       rawURL,
		"content":   content,
		"truncated": truncated,
	}, "", "  ")
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	return string(payload), nil
}

var (
	scriptOrStyle = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagPattern    = regexp.MustCompile(`(?s)<[^>]+>`)
	whitespaceRun = regexp.MustCompile(`[ \t]+`)
	blankLineRun  = regexp.MustCompile(`\n{3,}`)
)

// extractText reduces HTML to readable plain text: strips script/style
// blocks, then tags, then collapses whitespace.
func extractText(html string) string {
	html = scriptOrStyle.ReplaceAllString(html, "")
	text := tagPattern.ReplaceAllString(html, "\n")
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = blankLineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
