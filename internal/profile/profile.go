// Package profile implements the per-user persistence layout: a config
// root holding a `last_profile` marker and a `profiles/<name>/`
// directory per profile with preferences, saved places, chat log, input
// history, usage and tool-call audit logs, and compaction backups.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marvin-core/marvin/pkg/models"
)

const (
	configDirName    = ".marvin"
	lastProfileFile  = "last_profile"
	profilesDirName  = "profiles"
	preferencesFile  = "preferences.yaml"
	savedPlacesFile  = "saved_places.json"
	chatLogFile      = "chat_log.json"
	inputHistoryFile = "input_history"
	usageLogFile     = "usage.jsonl"
	toolCallsLogFile = "tool-calls.jsonl"
	backupsDirName   = "backups"
	ntfyFile         = "ntfy_subscriptions.json"
	oauthTokensFile  = "oauth_tokens.json"
)

// RootDir returns the per-user config root ($HOME/.marvin).
func RootDir() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		home = "."
	}
	return filepath.Join(home, configDirName)
}

// LastProfilePath returns the path to the single-line last-active-profile marker.
func LastProfilePath() string {
	return filepath.Join(RootDir(), lastProfileFile)
}

// ReadLastProfile loads the last active profile name, or "" if unset.
func ReadLastProfile() (string, error) {
	data, err := os.ReadFile(LastProfilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteLastProfile records name as the active profile.
func WriteLastProfile(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	path := LastProfilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(name+"\n"), 0o644)
}

// Dir returns the directory for a named profile.
func Dir(name string) string {
	return filepath.Join(RootDir(), profilesDirName, name)
}

// ListProfiles returns every profile name under profiles/, sorted.
func ListProfiles() ([]string, error) {
	dir := filepath.Join(RootDir(), profilesDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Profile is a live handle on one profile directory's state. Tool
// handlers receive it through registry.ToolContext.Profile.
type Profile struct {
	Name        string
	dir         string
	Preferences map[string]any
	SavedPlaces []models.SavedPlace
	ChatLog     []models.ChatLogEntry
}

// Load opens (creating if necessary) the named profile directory and
// reads its current preferences/saved places/chat log into memory.
func Load(name string) (*Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("profile: name is required")
	}
	dir := Dir(name)
	if err := os.MkdirAll(filepath.Join(dir, backupsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("profile: create directory: %w", err)
	}

	p := &Profile{Name: name, dir: dir, Preferences: map[string]any{}}

	if err := readYAML(filepath.Join(dir, preferencesFile), &p.Preferences); err != nil {
		return nil, fmt.Errorf("profile: read preferences: %w", err)
	}
	if p.Preferences == nil {
		p.Preferences = map[string]any{}
	}
	if err := readJSON(filepath.Join(dir, savedPlacesFile), &p.SavedPlaces); err != nil {
		return nil, fmt.Errorf("profile: read saved places: %w", err)
	}
	if err := readJSON(filepath.Join(dir, chatLogFile), &p.ChatLog); err != nil {
		return nil, fmt.Errorf("profile: read chat log: %w", err)
	}

	return p, nil
}

// Dir returns the profile's own directory, exposed to tool handlers via
// registry.ToolContext.ProfileDir.
func (p *Profile) Dir() string { return p.dir }

// SavePreferences persists the in-memory preferences map.
func (p *Profile) SavePreferences() error {
	return writeYAML(filepath.Join(p.dir, preferencesFile), p.Preferences)
}

// SaveSavedPlaces persists the in-memory saved-places list.
func (p *Profile) SaveSavedPlaces() error {
	return writeJSON(filepath.Join(p.dir, savedPlacesFile), p.SavedPlaces)
}

// AppendChatLog appends one entry to the in-memory and on-disk chat log.
func (p *Profile) AppendChatLog(entry models.ChatLogEntry) error {
	p.ChatLog = append(p.ChatLog, entry)
	return writeJSON(filepath.Join(p.dir, chatLogFile), p.ChatLog)
}

// PopChatLog removes and returns the last chat log entry, or false if
// the log is empty.
func (p *Profile) PopChatLog() (models.ChatLogEntry, bool) {
	if len(p.ChatLog) == 0 {
		return models.ChatLogEntry{}, false
	}
	last := p.ChatLog[len(p.ChatLog)-1]
	p.ChatLog = p.ChatLog[:len(p.ChatLog)-1]
	_ = writeJSON(filepath.Join(p.dir, chatLogFile), p.ChatLog)
	return last, true
}

// AppendInputHistory appends one line to the newline-delimited input
// history file.
func (p *Profile) AppendInputHistory(line string) error {
	f, err := os.OpenFile(filepath.Join(p.dir, inputHistoryFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(strings.ReplaceAll(line, "\n", " ") + "\n")
	return err
}

// AppendUsageRecord appends one JSON line to usage.jsonl.
func (p *Profile) AppendUsageRecord(v any) error {
	return appendJSONLine(filepath.Join(p.dir, usageLogFile), v)
}

// AppendToolCallRecord appends one JSON line to tool-calls.jsonl.
func (p *Profile) AppendToolCallRecord(v any) error {
	return appendJSONLine(filepath.Join(p.dir, toolCallsLogFile), v)
}

// WriteBackup implements compactor.BackupWriter: it writes the full
// pre-compaction transcript to backups/context-<ISO>.jsonl and returns
// the path written.
func (p *Profile) WriteBackup(messages []models.Message) (string, error) {
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05Z")
	path := filepath.Join(p.dir, backupsDirName, fmt.Sprintf("context-%s.jsonl", stamp))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, m := range messages {
		if err := enc.Encode(m); err != nil {
			return "", err
		}
	}
	return path, nil
}

// NtfySubscriptionsPath and OAuthTokensPath expose the optional profile
// files for the tools that use them.
func (p *Profile) NtfySubscriptionsPath() string { return filepath.Join(p.dir, ntfyFile) }
func (p *Profile) OAuthTokensPath() string        { return filepath.Join(p.dir, oauthTokensFile) }

// UsageLogPath and ToolCallsLogPath expose usage.jsonl/tool-calls.jsonl
// for the get_usage tool's cross-session window queries.
func (p *Profile) UsageLogPath() string     { return filepath.Join(p.dir, usageLogFile) }
func (p *Profile) ToolCallsLogPath() string { return filepath.Join(p.dir, toolCallsLogFile) }

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, v)
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func appendJSONLine(path string, v any) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	return enc.Encode(v)
}
