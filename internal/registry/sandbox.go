package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ticketsDir is the reserved ticket-store subtree every file-touching tool
// is forbidden from reaching, regardless of relative-path tricks; only
// the ticket tools go there.
const ticketsDir = ".tickets"

// ResolvePath enforces the path sandbox: the model-supplied path is
// rejected outright if it is
// absolute, contains a ".." segment, resolves outside workingDir, or
// targets the reserved .tickets/ subtree. On success it returns the
// absolute, cleaned path beneath workingDir.
func ResolvePath(workingDir, p string) (string, error) {
	if filepath.IsAbs(p) {
		return "", sandboxError(workingDir, fmt.Sprintf("path %q is absolute; paths must be relative to the working directory", p))
	}
	if containsDotDot(p) {
		return "", sandboxError(workingDir, fmt.Sprintf("path %q may not contain \"..\" segments", p))
	}
	if isTicketsPath(p) {
		return "", sandboxError(workingDir, fmt.Sprintf("path %q targets the reserved .tickets/ store", p))
	}

	joined := filepath.Join(workingDir, p)
	absWorking, err := filepath.Abs(workingDir)
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	rel, err := filepath.Rel(absWorking, absJoined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", sandboxError(workingDir, fmt.Sprintf("path %q resolves outside the working directory", p))
	}
	if isTicketsPath(rel) {
		return "", sandboxError(workingDir, fmt.Sprintf("path %q targets the reserved .tickets/ store", p))
	}

	return absJoined, nil
}

func containsDotDot(p string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func isTicketsPath(p string) bool {
	clean := filepath.ToSlash(filepath.Clean(p))
	return clean == ticketsDir || strings.HasPrefix(clean, ticketsDir+"/")
}

// sandboxError names the working directory and attaches a small tree
// listing so the model can orient itself and retry with a valid path.
func sandboxError(workingDir, reason string) error {
	listing := treeListing(workingDir, 40)
	return fmt.Errorf("Error: %s (working directory: %s)\n%s", reason, workingDir, listing)
}

// treeListing renders a shallow, depth-bounded directory listing capped at
// maxEntries so the error payload stays small.
func treeListing(root string, maxEntries int) string {
	var lines []string
	count := 0
	var walk func(dir, prefix string, depth int)
	walk = func(dir, prefix string, depth int) {
		if count >= maxEntries || depth > 2 {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, e := range entries {
			if count >= maxEntries {
				return
			}
			name := e.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			lines = append(lines, prefix+name)
			count++
			if e.IsDir() {
				walk(filepath.Join(dir, name), prefix+"  ", depth+1)
			}
		}
	}
	walk(root, "", 0)
	if len(lines) == 0 {
		return "(empty working directory)"
	}
	return strings.Join(lines, "\n")
}

// LargeFileThresholdBytes is the read_file size cutoff above which a line
// window is required.
const LargeFileThresholdBytes = 10 * 1024

// CheckLargeFileGuard refuses a whole-file read_file call when the target
// exceeds LargeFileThresholdBytes and no line window was requested,
// returning an error naming the total line count and an example
// invocation with a window.
func CheckLargeFileGuard(path string, size int64, totalLines int, hasWindow bool) error {
	if size <= LargeFileThresholdBytes || hasWindow {
		return nil
	}
	return fmt.Errorf(
		"Error: %s is %d bytes (%d lines), over the %d byte limit for a full read; "+
			"retry with a line window, e.g. read_file {\"path\":%q,\"start_line\":1,\"end_line\":200}",
		path, size, totalLines, LargeFileThresholdBytes, path)
}
