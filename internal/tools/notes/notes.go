// Package notes implements note_create, note_append, and note_search
// under ~/Notes. Unlike the file-touching tools in internal/tools/files,
// notes are rooted under the user's notes directory rather than the
// session's workingDir, so this package carries its own path resolver
// with the same containment discipline (reject absolute paths, reject
// ".." escapes), rooted at a second tree.
package notes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marvin-core/marvin/internal/registry"
)

// RootDirName is the notes tree's name under the user's home directory.
const RootDirName = "Notes"

// RootDir returns the notes root ($HOME/Notes).
func RootDir() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		home = "."
	}
	return filepath.Join(home, RootDirName)
}

// resolve enforces containment under root the same way
// internal/registry.ResolvePath enforces containment under workingDir:
// no absolute paths, no ".." segments, and the joined path must stay
// beneath root.
func resolve(root, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("Error: a note name is required")
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("Error: note name %q must be relative to the notes directory", name)
	}
	for _, seg := range strings.Split(filepath.ToSlash(name), "/") {
		if seg == ".." {
			return "", fmt.Errorf("Error: note name %q may not contain \"..\" segments", name)
		}
	}
	if !strings.HasSuffix(name, ".md") {
		name += ".md"
	}
	joined := filepath.Join(root, name)
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve notes root: %w", err)
	}
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("resolve note path: %w", err)
	}
	rel, err := filepath.Rel(absRoot, absJoined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("Error: note name %q resolves outside the notes directory", name)
	}
	return absJoined, nil
}

// Defs returns the notes tool definitions, ready to register.
func Defs() []*registry.ToolDef {
	return []*registry.ToolDef{noteCreateDef(), noteAppendDef(), noteSearchDef()}
}

func noteCreateDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "note_create",
		Description: "Create (or overwrite) a note under the user's notes directory.",
		Category:    registry.CategoryAlways,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":    map[string]any{"type": "string", "description": "Note name, e.g. \"ideas/project-x\"."},
				"content": map[string]any{"type": "string"},
			},
			"required": []string{"name", "content"},
		},
		Writes:  true,
		Handler: noteCreate,
	}
}

func noteAppendDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "note_append",
		Description: "Append text to an existing (or new) note under the user's notes directory.",
		Category:    registry.CategoryAlways,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":    map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			},
			"required": []string{"name", "content"},
		},
		Writes:  true,
		Handler: noteAppend,
	}
}

func noteSearchDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "note_search",
		Description: "Search note titles and contents for a query string.",
		Category:    registry.CategoryAlways,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
			"required": []string{"query"},
		},
		Handler: noteSearch,
	}
}

func noteCreate(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	name, _ := args["name"].(string)
	content, _ := args["content"].(string)
	path, err := resolve(RootDir(), name)
	if err != nil {
		return err.Error(), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Sprintf("Error: create notes directory: %v", err), nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Sprintf("Error: write note: %v", err), nil
	}
	return fmt.Sprintf("Wrote note %s (%d bytes)", name, len(content)), nil
}

func noteAppend(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	name, _ := args["name"].(string)
	content, _ := args["content"].(string)
	path, err := resolve(RootDir(), name)
	if err != nil {
		return err.Error(), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Sprintf("Error: create notes directory: %v", err), nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Sprintf("Error: open note: %v", err), nil
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return fmt.Sprintf("Error: append note: %v", err), nil
	}
	return fmt.Sprintf("Appended %d bytes to %s", len(content), name), nil
}

func noteSearch(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return "Error: query is required", nil
	}

	root := RootDir()
	var matches []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		if strings.Contains(strings.ToLower(rel), strings.ToLower(query)) ||
			strings.Contains(strings.ToLower(string(data)), strings.ToLower(query)) {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return fmt.Sprintf("Error: search notes: %v", err), nil
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		return fmt.Sprintf("No notes match %q", query), nil
	}
	return fmt.Sprintf("Matches for %q:\n%s", query, strings.Join(matches, "\n")), nil
}
