package models

import "time"

// Mode is a static tool-visibility profile for a session.
type Mode string

const (
	ModeSurf   Mode = "surf"
	ModeCoding Mode = "coding"
	ModeLockin Mode = "lockin"
)

// CodingMode reports whether the mode enables write-heavy coding tools and
// the coding-agent system prompt preamble.
func (m Mode) CodingMode() bool {
	return m == ModeCoding || m == ModeLockin
}

// SavedPlace is a named location the user has asked the assistant to
// remember, surfaced in the system prompt and usable by location tools.
type SavedPlace struct {
	Name      string  `json:"name"`
	Address   string  `json:"address,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// ChatLogEntry is one persisted line of profiles/<name>/chat_log.json.
type ChatLogEntry struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// NtfySubscription is a push-notification topic the user has subscribed
// the assistant to relay alerts through.
type NtfySubscription struct {
	Topic     string    `json:"topic"`
	Server    string    `json:"server,omitempty"`
	AddedAt   time.Time `json:"added_at"`
}
