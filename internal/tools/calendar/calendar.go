// Package calendar implements the lockin-mode productivity tools: a
// calendar (events), alarms, timers, and a focus-session toggle, all
// persisted as small JSON stores under the profile directory. Marvin
// has no background daemon, so these tools only record and list; firing
// a timer or alarm is left to whatever surface reads the store.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marvin-core/marvin/internal/registry"
)

const (
	eventsFile = "calendar_events.json"
	alarmsFile = "alarms.json"
	timersFile = "timers.json"
	focusFile  = "focus_log.json"
)

// Event is one calendar entry.
type Event struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty"`
	Notes     string    `json:"notes,omitempty"`
}

// Alarm is one alarm entry, firing once at FireAt.
type Alarm struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	FireAt    time.Time `json:"fire_at"`
	Cancelled bool      `json:"cancelled"`
}

// Timer is one countdown timer, firing Duration after CreatedAt.
type Timer struct {
	ID        string        `json:"id"`
	Label     string        `json:"label"`
	CreatedAt time.Time     `json:"created_at"`
	Duration  time.Duration `json:"duration"`
	Cancelled bool          `json:"cancelled"`
}

// FocusSession is one start/stop pair from focus_start/focus_stop.
type FocusSession struct {
	StartedAt time.Time     `json:"started_at"`
	StoppedAt time.Time     `json:"stopped_at,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Defs returns the calendar/alarm/timer/focus tool definitions, ready to
// register. All are CategoryAlways: surf mode lists them, lockin mode
// adds them via registry.LockinExtras, and coding mode leaves them out.
func Defs() []*registry.ToolDef {
	return []*registry.ToolDef{
		createEventDef(), listEventsDef(),
		alarmSetDef(), alarmCancelDef(),
		timerSetDef(), timerCancelDef(),
		focusStartDef(), focusStopDef(),
	}
}

func createEventDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "calendar_create_event",
		Description: "Create a calendar event with a start time and optional end time and notes.",
		Category:    registry.CategoryAlways,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":      map[string]any{"type": "string"},
				"start_time": map[string]any{"type": "string", "description": "RFC3339 timestamp."},
				"end_time":   map[string]any{"type": "string", "description": "RFC3339 timestamp, optional."},
				"notes":      map[string]any{"type": "string"},
			},
			"required": []string{"title", "start_time"},
		},
		Handler: createEvent,
	}
}

func listEventsDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "calendar_list_events",
		Description: "List upcoming calendar events.",
		Category:    registry.CategoryAlways,
		Schema:      map[string]any{"type": "object", "properties": map[string]any{}},
		Handler:     listEvents,
	}
}

func alarmSetDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "alarm_set",
		Description: "Set a one-time alarm to fire at a given RFC3339 timestamp.",
		Category:    registry.CategoryAlways,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"label":   map[string]any{"type": "string"},
				"fire_at": map[string]any{"type": "string", "description": "RFC3339 timestamp."},
			},
			"required": []string{"fire_at"},
		},
		Handler: alarmSet,
	}
}

func alarmCancelDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "alarm_cancel",
		Description: "Cancel a previously set alarm by ID.",
		Category:    registry.CategoryAlways,
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"id": map[string]any{"type": "string"}},
			"required":   []string{"id"},
		},
		Handler: alarmCancel,
	}
}

func timerSetDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "timer_set",
		Description: "Start a countdown timer for a given number of seconds.",
		Category:    registry.CategoryAlways,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"label":            map[string]any{"type": "string"},
				"duration_seconds": map[string]any{"type": "integer", "minimum": 1},
			},
			"required": []string{"duration_seconds"},
		},
		Handler: timerSet,
	}
}

func timerCancelDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "timer_cancel",
		Description: "Cancel a running timer by ID.",
		Category:    registry.CategoryAlways,
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"id": map[string]any{"type": "string"}},
			"required":   []string{"id"},
		},
		Handler: timerCancel,
	}
}

func focusStartDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "focus_start",
		Description: "Start a focus session, recording the current time.",
		Category:    registry.CategoryAlways,
		Schema:      map[string]any{"type": "object", "properties": map[string]any{}},
		Handler:     focusStart,
	}
}

func focusStopDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "focus_stop",
		Description: "Stop the active focus session and record its duration.",
		Category:    registry.CategoryAlways,
		Schema:      map[string]any{"type": "object", "properties": map[string]any{}},
		Handler:     focusStop,
	}
}

func createEvent(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	title, _ := args["title"].(string)
	startRaw, _ := args["start_time"].(string)
	start, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		return fmt.Sprintf("Error: start_time must be RFC3339, got %q", startRaw), nil
	}
	var end time.Time
	if endRaw, ok := args["end_time"].(string); ok && endRaw != "" {
		end, err = time.Parse(time.RFC3339, endRaw)
		if err != nil {
			return fmt.Sprintf("Error: end_time must be RFC3339, got %q", endRaw), nil
		}
	}
	notes, _ := args["notes"].(string)

	var events []Event
	if err := readJSON(tc.ProfileDir, eventsFile, &events); err != nil {
		return fmt.Sprintf("Error: read calendar: %v", err), nil
	}
	ev := Event{ID: nextID("E"), Title: title, StartTime: start, EndTime: end, Notes: notes}
	events = append(events, ev)
	if err := writeJSON(tc.ProfileDir, eventsFile, events); err != nil {
		return fmt.Sprintf("Error: write calendar: %v", err), nil
	}
	return fmt.Sprintf("Created event %s: %s at %s", ev.ID, ev.Title, ev.StartTime.Format(time.RFC3339)), nil
}

func listEvents(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	var events []Event
	if err := readJSON(tc.ProfileDir, eventsFile, &events); err != nil {
		return fmt.Sprintf("Error: read calendar: %v", err), nil
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StartTime.Before(events[j].StartTime) })
	now := time.Now()
	var b strings.Builder
	for _, e := range events {
		// An event with no recorded end stays listed once started.
		if e.StartTime.Before(now) && !e.EndTime.IsZero() && e.EndTime.Before(now) {
			continue
		}
		fmt.Fprintf(&b, "%s: %s at %s\n", e.ID, e.Title, e.StartTime.Format(time.RFC3339))
	}
	if b.Len() == 0 {
		return "No upcoming events.", nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func alarmSet(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	label, _ := args["label"].(string)
	fireRaw, _ := args["fire_at"].(string)
	fireAt, err := time.Parse(time.RFC3339, fireRaw)
	if err != nil {
		return fmt.Sprintf("Error: fire_at must be RFC3339, got %q", fireRaw), nil
	}

	var alarms []Alarm
	if err := readJSON(tc.ProfileDir, alarmsFile, &alarms); err != nil {
		return fmt.Sprintf("Error: read alarms: %v", err), nil
	}
	a := Alarm{ID: nextID("A"), Label: label, FireAt: fireAt}
	alarms = append(alarms, a)
	if err := writeJSON(tc.ProfileDir, alarmsFile, alarms); err != nil {
		return fmt.Sprintf("Error: write alarms: %v", err), nil
	}
	return fmt.Sprintf("Set alarm %s for %s", a.ID, a.FireAt.Format(time.RFC3339)), nil
}

func alarmCancel(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	id, _ := args["id"].(string)
	var alarms []Alarm
	if err := readJSON(tc.ProfileDir, alarmsFile, &alarms); err != nil {
		return fmt.Sprintf("Error: read alarms: %v", err), nil
	}
	found := false
	for i, a := range alarms {
		if a.ID == id {
			alarms[i].Cancelled = true
			found = true
			break
		}
	}
	if !found {
		return fmt.Sprintf("Error: alarm %s not found", id), nil
	}
	if err := writeJSON(tc.ProfileDir, alarmsFile, alarms); err != nil {
		return fmt.Sprintf("Error: write alarms: %v", err), nil
	}
	return fmt.Sprintf("Cancelled alarm %s", id), nil
}

func timerSet(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	label, _ := args["label"].(string)
	seconds, ok := numberArg(args["duration_seconds"])
	if !ok || seconds <= 0 {
		return "Error: duration_seconds must be a positive integer", nil
	}

	var timers []Timer
	if err := readJSON(tc.ProfileDir, timersFile, &timers); err != nil {
		return fmt.Sprintf("Error: read timers: %v", err), nil
	}
	t := Timer{
		ID:        nextID("TM"),
		Label:     label,
		CreatedAt: time.Now(),
		Duration:  time.Duration(seconds) * time.Second,
	}
	timers = append(timers, t)
	if err := writeJSON(tc.ProfileDir, timersFile, timers); err != nil {
		return fmt.Sprintf("Error: write timers: %v", err), nil
	}
	return fmt.Sprintf("Started timer %s for %s, firing at %s", t.ID, t.Duration,
		t.CreatedAt.Add(t.Duration).Format(time.RFC3339)), nil
}

func timerCancel(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	id, _ := args["id"].(string)
	var timers []Timer
	if err := readJSON(tc.ProfileDir, timersFile, &timers); err != nil {
		return fmt.Sprintf("Error: read timers: %v", err), nil
	}
	found := false
	for i, t := range timers {
		if t.ID == id {
			timers[i].Cancelled = true
			found = true
			break
		}
	}
	if !found {
		return fmt.Sprintf("Error: timer %s not found", id), nil
	}
	if err := writeJSON(tc.ProfileDir, timersFile, timers); err != nil {
		return fmt.Sprintf("Error: write timers: %v", err), nil
	}
	return fmt.Sprintf("Cancelled timer %s", id), nil
}

func focusStart(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	var sessions []FocusSession
	if err := readJSON(tc.ProfileDir, focusFile, &sessions); err != nil {
		return fmt.Sprintf("Error: read focus log: %v", err), nil
	}
	if len(sessions) > 0 && sessions[len(sessions)-1].StoppedAt.IsZero() {
		return "Error: a focus session is already active; call focus_stop first", nil
	}
	sessions = append(sessions, FocusSession{StartedAt: time.Now()})
	if err := writeJSON(tc.ProfileDir, focusFile, sessions); err != nil {
		return fmt.Sprintf("Error: write focus log: %v", err), nil
	}
	return "Focus session started.", nil
}

func focusStop(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	var sessions []FocusSession
	if err := readJSON(tc.ProfileDir, focusFile, &sessions); err != nil {
		return fmt.Sprintf("Error: read focus log: %v", err), nil
	}
	if len(sessions) == 0 || !sessions[len(sessions)-1].StoppedAt.IsZero() {
		return "Error: no active focus session", nil
	}
	last := &sessions[len(sessions)-1]
	last.StoppedAt = time.Now()
	last.Duration = last.StoppedAt.Sub(last.StartedAt)
	if err := writeJSON(tc.ProfileDir, focusFile, sessions); err != nil {
		return fmt.Sprintf("Error: write focus log: %v", err), nil
	}
	return fmt.Sprintf("Focus session stopped after %s.", last.Duration), nil
}

func numberArg(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		parsed, err := strconv.Atoi(n)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func nextID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func readJSON(profileDir, name string, v any) error {
	path := filepath.Join(profileDir, name)
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

func writeJSON(profileDir, name string, v any) error {
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(profileDir, name), data, 0o644)
}
