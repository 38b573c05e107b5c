// Package files implements the file-touching tools: read_file,
// create_file, append_file, apply_patch. All paths go through
// internal/registry's sandbox and large-file guard; apply_patch accepts
// both a JSON `patch` argument and the raw `*** Begin Patch` envelope
// the coercion gate special-cases into `__raw_patch`.
package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/marvin-core/marvin/internal/registry"
)

// Defs returns the file-touching tool definitions, ready to register.
func Defs() []*registry.ToolDef {
	return []*registry.ToolDef{
		readFileDef(),
		createFileDef(),
		appendFileDef(),
		applyPatchDef(),
	}
}

func readFileDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "read_file",
		Description: "Read a file relative to the working directory, optionally windowed by line range.",
		Category:    registry.CategoryAlways,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":       map[string]any{"type": "string", "description": "Path relative to the working directory."},
				"start_line": map[string]any{"type": "integer", "description": "1-indexed first line to include.", "minimum": 1},
				"end_line":   map[string]any{"type": "integer", "description": "1-indexed last line to include.", "minimum": 1},
			},
			"required": []string{"path"},
		},
		Handler: readFile,
	}
}

func readFile(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	rawPath, _ := args["path"].(string)
	if strings.TrimSpace(rawPath) == "" {
		return "Error: path is required", nil
	}
	resolved, err := registry.ResolvePath(tc.WorkingDir, rawPath)
	if err != nil {
		return err.Error(), nil
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return fmt.Sprintf("Error: stat %s: %v", rawPath, err), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Sprintf("Error: read %s: %v", rawPath, err), nil
	}
	lines := strings.Split(string(data), "\n")

	startLine, hasStart := intArg(args, "start_line")
	endLine, hasEnd := intArg(args, "end_line")
	hasWindow := hasStart && hasEnd

	if err := registry.CheckLargeFileGuard(rawPath, info.Size(), len(lines), hasWindow); err != nil {
		return err.Error(), nil
	}

	if !hasWindow {
		return string(data), nil
	}
	if startLine < 1 {
		startLine = 1
	}
	if endLine > len(lines) {
		endLine = len(lines)
	}
	if startLine > endLine {
		return fmt.Sprintf("Error: start_line %d is after end_line %d", startLine, endLine), nil
	}
	return strings.Join(lines[startLine-1:endLine], "\n"), nil
}

func createFileDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "create_file",
		Description: "Create a file (or overwrite an existing one) relative to the working directory.",
		Category:    registry.CategoryCoding,
		Writes:      true,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string", "description": "Path relative to the working directory."},
				"content": map[string]any{"type": "string", "description": "Full file content."},
			},
			"required": []string{"path", "content"},
		},
		Handler: createFile,
	}
}

func createFile(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	rawPath, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if strings.TrimSpace(rawPath) == "" {
		return "Error: path is required", nil
	}
	resolved, err := registry.ResolvePath(tc.WorkingDir, rawPath)
	if err != nil {
		return err.Error(), nil
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Sprintf("Error: create parent directory: %v", err), nil
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return fmt.Sprintf("Error: write %s: %v", rawPath, err), nil
	}
	return fmt.Sprintf("Created %s (%d bytes)", rawPath, len(content)), nil
}

func appendFileDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "append_file",
		Description: "Append content to the end of an existing file, relative to the working directory.",
		Category:    registry.CategoryCoding,
		Writes:      true,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string", "description": "Path relative to the working directory."},
				"content": map[string]any{"type": "string", "description": "Text to append."},
			},
			"required": []string{"path", "content"},
		},
		Handler: appendFile,
	}
}

func appendFile(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	rawPath, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if strings.TrimSpace(rawPath) == "" {
		return "Error: path is required", nil
	}
	resolved, err := registry.ResolvePath(tc.WorkingDir, rawPath)
	if err != nil {
		return err.Error(), nil
	}
	f, err := os.OpenFile(resolved, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Sprintf("Error: open %s: %v", rawPath, err), nil
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return fmt.Sprintf("Error: append %s: %v", rawPath, err), nil
	}
	return fmt.Sprintf("Appended %d bytes to %s", len(content), rawPath), nil
}

func applyPatchDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name: "apply_patch",
		Description: "Apply a patch in the '*** Begin Patch' / '*** Update File:' dialect to one or more " +
			"files relative to the working directory.",
		Category: registry.CategoryCoding,
		Writes:   true,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"patch": map[string]any{"type": "string", "description": "The full patch envelope."},
			},
			"required": []string{"patch"},
		},
		Handler: applyPatch,
	}
}

func applyPatch(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	patch, _ := args["__raw_patch"].(string)
	if patch == "" {
		patch, _ = args["patch"].(string)
	}
	if strings.TrimSpace(patch) == "" {
		return "Error: patch is required", nil
	}

	ops, err := parsePatchEnvelope(patch)
	if err != nil {
		return "Error: " + err.Error(), nil
	}

	var applied []string
	for _, op := range ops {
		resolved, err := registry.ResolvePath(tc.WorkingDir, op.path)
		if err != nil {
			return err.Error(), nil
		}
		switch op.kind {
		case opAdd:
			if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
				return fmt.Sprintf("Error: create parent directory: %v", err), nil
			}
			if err := os.WriteFile(resolved, []byte(op.addContent), 0o644); err != nil {
				return fmt.Sprintf("Error: write %s: %v", op.path, err), nil
			}
		case opDelete:
			if err := os.Remove(resolved); err != nil {
				return fmt.Sprintf("Error: delete %s: %v", op.path, err), nil
			}
		case opUpdate:
			data, err := os.ReadFile(resolved)
			if err != nil {
				return fmt.Sprintf("Error: read %s: %v", op.path, err), nil
			}
			updated, err := applyHunks(string(data), op.hunks)
			if err != nil {
				return fmt.Sprintf("Error: apply patch to %s: %v", op.path, err), nil
			}
			if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
				return fmt.Sprintf("Error: write %s: %v", op.path, err), nil
			}
		}
		applied = append(applied, op.path)
	}
	return fmt.Sprintf("Patched %s", strings.Join(applied, ", ")), nil
}

type patchKind int

const (
	opUpdate patchKind = iota
	opAdd
	opDelete
)

type patchOp struct {
	kind       patchKind
	path       string
	addContent string
	hunks      []hunk
}

type hunk struct {
	lines []string
}

var (
	updateHeader = regexp.MustCompile(`^\*\*\* Update File: (.+)$`)
	addHeader    = regexp.MustCompile(`^\*\*\* Add File: (.+)$`)
	deleteHeader = regexp.MustCompile(`^\*\*\* Delete File: (.+)$`)
)

// parsePatchEnvelope parses the "*** Begin Patch" dialect: a sequence of
// "*** Update File:"/"*** Add File:"/"*** Delete File:" sections, each
// followed (for updates) by @@-delimited hunks of " "/"+"/"-" lines,
// terminated by "*** End Patch".
func parsePatchEnvelope(patch string) ([]patchOp, error) {
	lines := strings.Split(strings.TrimRight(patch, "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "*** Begin Patch" {
		return nil, fmt.Errorf("patch must begin with '*** Begin Patch'")
	}

	var ops []patchOp
	var current *patchOp
	var currentHunk *hunk

	for i := 1; i < len(lines); i++ {
		line := lines[i]
		switch {
		case strings.TrimSpace(line) == "*** End Patch":
			return ops, nil
		case updateHeader.MatchString(line):
			ops = append(ops, patchOp{kind: opUpdate, path: updateHeader.FindStringSubmatch(line)[1]})
			current = &ops[len(ops)-1]
			currentHunk = nil
		case addHeader.MatchString(line):
			ops = append(ops, patchOp{kind: opAdd, path: addHeader.FindStringSubmatch(line)[1]})
			current = &ops[len(ops)-1]
			currentHunk = nil
		case deleteHeader.MatchString(line):
			ops = append(ops, patchOp{kind: opDelete, path: deleteHeader.FindStringSubmatch(line)[1]})
			current = &ops[len(ops)-1]
			currentHunk = nil
		case strings.HasPrefix(line, "@@"):
			if current == nil || current.kind != opUpdate {
				return nil, fmt.Errorf("hunk marker outside an Update File section")
			}
			current.hunks = append(current.hunks, hunk{})
			currentHunk = &current.hunks[len(current.hunks)-1]
		default:
			if current == nil {
				continue
			}
			switch current.kind {
			case opAdd:
				current.addContent += strings.TrimPrefix(line, "+") + "\n"
			case opUpdate:
				if currentHunk == nil {
					continue
				}
				if line == "" || line[0] == ' ' || line[0] == '+' || line[0] == '-' {
					currentHunk.lines = append(currentHunk.lines, line)
				}
			}
		}
	}
	return nil, fmt.Errorf("patch is missing a '*** End Patch' terminator")
}

// applyHunks applies each hunk's " "/"+"/"-" lines against content by
// locating the hunk's context/removed lines as a contiguous run and
// splicing in the added lines in their place. The dialect carries no
// explicit @@ line numbers, so hunks match purely by content.
func applyHunks(content string, hunks []hunk) (string, error) {
	lines := strings.Split(content, "\n")
	for _, h := range hunks {
		matchLines, newLines := splitHunk(h.lines)
		idx := findSubsequence(lines, matchLines)
		if idx < 0 {
			return "", fmt.Errorf("context not found for hunk")
		}
		out := make([]string, 0, len(lines)-len(matchLines)+len(newLines))
		out = append(out, lines[:idx]...)
		out = append(out, newLines...)
		out = append(out, lines[idx+len(matchLines):]...)
		lines = out
	}
	return strings.Join(lines, "\n"), nil
}

// splitHunk separates a hunk's lines into the "old" sequence (context +
// removed, i.e. what must be found in the file) and the "new" sequence
// (context + added, i.e. what replaces it).
func splitHunk(hunkLines []string) (oldLines, newLines []string) {
	for _, l := range hunkLines {
		if l == "" {
			// A blank line with no leading marker is a blank context line.
			oldLines = append(oldLines, "")
			newLines = append(newLines, "")
			continue
		}
		prefix, text := l[0], l[1:]
		switch prefix {
		case ' ':
			oldLines = append(oldLines, text)
			newLines = append(newLines, text)
		case '-':
			oldLines = append(oldLines, text)
		case '+':
			newLines = append(newLines, text)
		}
	}
	return oldLines, newLines
}

func findSubsequence(haystack, needle []string) int {
	if len(needle) == 0 {
		return 0
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j, n := range needle {
			if haystack[i+j] != n {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func intArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
