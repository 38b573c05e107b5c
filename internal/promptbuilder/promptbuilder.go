// Package promptbuilder assembles the session's system message from the
// live profile, current mode, and working directory: ordered,
// independently-omittable sections joined by blank lines.
package promptbuilder

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marvin-core/marvin/pkg/models"
)

// HistoryEntryCap and HistoryCharCap bound the compact-history section:
// the last N log entries, each truncated to a char cap.
const (
	HistoryEntryCap = 20
	HistoryCharCap  = 240

	// SpecDocByteCap bounds how much of .marvin/spec.md or design.md is
	// inlined.
	SpecDocByteCap = 10 * 1024
)

// rolePreamble is the fixed role preamble and tool-use contract.
const rolePreamble = "You are Marvin, an interactive terminal assistant. Batch independent " +
	"tool calls together rather than issuing them one at a time. Prefer calling a tool over " +
	"fabricating an answer, and prefer a web or news tool over memory for anything time-sensitive."

// codingPreamble is appended when codingMode is true.
const codingPreamble = "Coding mode is active. Keep paths relative to the working directory. " +
	"Make the smallest change that satisfies the request; never delete code the user did not ask " +
	"you to remove. Write specific, descriptive commit messages. Never bypass a shell confirmation " +
	"prompt or suggest the user disable it."

// ProfileView is the subset of profile.Profile the builder reads, kept as
// plain data so this package has no import-cycle dependency on
// internal/profile.
type ProfileView struct {
	Name        string
	Preferences map[string]any
	SavedPlaces []models.SavedPlace
	ChatLog     []models.ChatLogEntry
}

// Build assembles the system message. Each section is separated by a
// blank line; missing sections are omitted rather than emitted empty.
func Build(view ProfileView, mode models.Mode, codingMode bool, workingDir string) string {
	var sections []string

	sections = append(sections, rolePreamble)

	if view.Name != "" {
		sections = append(sections, fmt.Sprintf("Active profile: %s", view.Name))
	}

	if prefs := formatPreferences(view.Preferences); prefs != "" {
		sections = append(sections, "Preferences:\n"+prefs)
	}

	if places := formatSavedPlaces(view.SavedPlaces); places != "" {
		sections = append(sections, "Saved places:\n"+places)
	}

	if history := formatHistory(view.ChatLog); history != "" {
		sections = append(sections, "Recent conversation:\n"+history)
	}

	if codingMode {
		sections = append(sections, codingPreamble)

		if workingDir != "" {
			for _, name := range []string{"spec.md", "design.md"} {
				if doc := readWorkingDoc(workingDir, name); doc != "" {
					sections = append(sections, fmt.Sprintf("%s:\n%s", name, doc))
				}
			}
		}
	}

	return strings.Join(sections, "\n\n")
}

// formatPreferences renders the preferences map as inline YAML-ish
// key/value lines, sorted for determinism.
func formatPreferences(prefs map[string]any) string {
	if len(prefs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, prefs[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatSavedPlaces renders one saved place per line.
func formatSavedPlaces(places []models.SavedPlace) string {
	if len(places) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range places {
		if p.Address != "" {
			fmt.Fprintf(&b, "%s (%s)\n", p.Name, p.Address)
		} else {
			fmt.Fprintf(&b, "%s (%.5f, %.5f)\n", p.Name, p.Latitude, p.Longitude)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatHistory renders the last HistoryEntryCap chat log entries, each
// truncated to HistoryCharCap and role-tagged.
func formatHistory(log []models.ChatLogEntry) string {
	if len(log) == 0 {
		return ""
	}
	start := 0
	if len(log) > HistoryEntryCap {
		start = len(log) - HistoryEntryCap
	}
	var b strings.Builder
	for _, entry := range log[start:] {
		text := entry.Text
		if len(text) > HistoryCharCap {
			text = text[:HistoryCharCap] + "..."
		}
		fmt.Fprintf(&b, "[%s] %s\n", entry.Role, text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// readWorkingDoc reads <workingDir>/.marvin/<name> truncated to
// SpecDocByteCap, returning "" if the file does not exist.
func readWorkingDoc(workingDir, name string) string {
	path := filepath.Join(workingDir, ".marvin", name)
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	if len(data) > SpecDocByteCap {
		data = data[:SpecDocByteCap]
	}
	return strings.TrimSpace(string(data))
}
