package notes

import (
	"context"
	"strings"
	"testing"

	"github.com/marvin-core/marvin/internal/registry"
)

func TestResolveRejectsEscapes(t *testing.T) {
	root := t.TempDir()
	if _, err := resolve(root, "../outside"); err == nil {
		t.Fatal("expected an error for a \"..\" escape")
	}
	if _, err := resolve(root, "/etc/passwd"); err == nil {
		t.Fatal("expected an error for an absolute note name")
	}
	if _, err := resolve(root, ""); err == nil {
		t.Fatal("expected an error for an empty note name")
	}
}

func TestResolveAppendsMarkdownExtension(t *testing.T) {
	root := t.TempDir()
	path, err := resolve(root, "ideas/project-x")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.HasSuffix(path, "ideas/project-x.md") {
		t.Fatalf("expected a .md suffix, got %q", path)
	}
}

func TestNoteCreateAppendAndSearch(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	tc := &registry.ToolContext{}

	out, err := noteCreate(context.Background(), tc, map[string]any{
		"name":    "trip",
		"content": "pack sunscreen\n",
	})
	if err != nil {
		t.Fatalf("noteCreate: %v", err)
	}
	if !strings.Contains(out, "trip") {
		t.Fatalf("expected the confirmation to mention the note name, got %q", out)
	}

	if _, err := noteAppend(context.Background(), tc, map[string]any{
		"name":    "trip",
		"content": "book flights\n",
	}); err != nil {
		t.Fatalf("noteAppend: %v", err)
	}

	found, err := noteSearch(context.Background(), tc, map[string]any{"query": "sunscreen"})
	if err != nil {
		t.Fatalf("noteSearch: %v", err)
	}
	if !strings.Contains(found, "trip") {
		t.Fatalf("expected search to find the note by content, got %q", found)
	}

	notFound, err := noteSearch(context.Background(), tc, map[string]any{"query": "nonexistent"})
	if err != nil {
		t.Fatalf("noteSearch (miss): %v", err)
	}
	if !strings.HasPrefix(notFound, "No notes match") {
		t.Fatalf("expected a no-match message, got %q", notFound)
	}
}
