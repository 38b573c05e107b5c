package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/time/rate"
)

func TestWebSearchRequiresQuery(t *testing.T) {
	cfg := Config{SearchEndpoint: "http://example.invalid"}.withDefaults()
	out, err := webSearch(context.Background(), cfg, rate.NewLimiter(rate.Inf, 1), map[string]any{})
	if err != nil {
		t.Fatalf("webSearch returned Go error: %v", err)
	}
	if !strings.HasPrefix(out, "Error:") {
		t.Fatalf("expected rejection, got %q", out)
	}
}

func TestWebSearchReturnsResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"title":"Go","url":"https://go.dev","snippet":"The Go language"}]}`))
	}))
	defer server.Close()

	cfg := Config{SearchEndpoint: server.URL}.withDefaults()
	out, err := webSearch(context.Background(), cfg, rate.NewLimiter(rate.Inf, 1), map[string]any{"query": "golang"})
	if err != nil {
		t.Fatalf("webSearch: %v", err)
	}
	if !strings.Contains(out, "go.dev") {
		t.Fatalf("expected result to contain go.dev, got %q", out)
	}
}

func TestFetchURLRejectsNonHTTPScheme(t *testing.T) {
	cfg := Config{}.withDefaults()
	out, err := fetchURL(context.Background(), cfg, rate.NewLimiter(rate.Inf, 1), map[string]any{"url": "file:///etc/passwd"})
	if err != nil {
		t.Fatalf("fetchURL returned Go error: %v", err)
	}
	if !strings.HasPrefix(out, "Error:") {
		t.Fatalf("expected rejection of a non-http scheme, got %q", out)
	}
}

func TestFetchURLExtractsAndTruncates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><script>evil()</script><p>Hello world</p></body></html>`))
	}))
	defer server.Close()

	cfg := Config{MaxFetchChars: 5}.withDefaults()
	out, err := fetchURL(context.Background(), cfg, rate.NewLimiter(rate.Inf, 1), map[string]any{"url": server.URL})
	if err != nil {
		t.Fatalf("fetchURL: %v", err)
	}
	if !strings.Contains(out, `"truncated": true`) {
		t.Fatalf("expected truncated response, got %q", out)
	}
	if strings.Contains(out, "evil()") {
		t.Fatalf("expected script contents to be stripped, got %q", out)
	}
}

func TestExtractTextStripsTags(t *testing.T) {
	got := extractText(`<div><style>.a{color:red}</style><h1>Title</h1><p>Body text</p></div>`)
	if strings.Contains(got, "color:red") {
		t.Fatalf("expected style contents to be stripped, got %q", got)
	}
	if !strings.Contains(got, "Title") || !strings.Contains(got, "Body text") {
		t.Fatalf("expected extracted text to contain Title and Body text, got %q", got)
	}
}
