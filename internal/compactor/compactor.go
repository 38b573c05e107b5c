// Package compactor implements deterministic history compaction:
// preserve the system message, keep a recent window, summarize the rest
// through the current provider, and snap the split boundary so an
// assistant turn is never separated from its tool results.
package compactor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/marvin-core/marvin/internal/budget"
	"github.com/marvin-core/marvin/pkg/models"
)

// RecentMessageCap and RecentTokenCap bound the "recent" window collected
// walking backwards from the end of history, whichever is hit first.
const (
	RecentMessageCap = 10
	RecentTokenCap   = 32_000

	// TruncateChars bounds each user/assistant line folded into the
	// older-section transcript fed to the summarizer (step 5).
	TruncateChars = 300
)

// Summarizer calls the current provider to produce a faithful, concise
// summary of older history. The session wires this to whichever provider
// adapter and model it currently holds.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// BackupWriter persists the full pre-compaction transcript to a dated file
// under the profile directory before history is replaced.
type BackupWriter interface {
	WriteBackup(messages []models.Message) (path string, err error)
}

// Compact runs the full compaction algorithm and returns the replacement
// message list: [original-system, summary-system, ...recent].
func Compact(ctx context.Context, messages []models.Message, summarizer Summarizer, backup BackupWriter) ([]models.Message, error) {
	if len(messages) == 0 {
		return messages, nil
	}

	var system models.Message
	rest := messages
	if messages[0].Role == models.RoleSystem {
		system = messages[0]
		rest = messages[1:]
	}

	if backup != nil {
		if _, err := backup.WriteBackup(messages); err != nil {
			return nil, fmt.Errorf("write compaction backup: %w", err)
		}
	}

	splitIndex := recentSplitIndex(rest)
	older := rest[:splitIndex]
	recent := rest[splitIndex:]

	var summary string
	var err error
	if len(older) > 0 {
		transcript := renderTranscript(older)
		if summarizer != nil {
			summary, err = summarizer.Summarize(ctx, transcript)
		}
		if summarizer == nil || err != nil {
			summary = naiveSummary(older)
		}
	} else {
		summary = ""
	}

	out := make([]models.Message, 0, len(recent)+2)
	if system.Role == models.RoleSystem {
		out = append(out, system)
	}
	if len(older) > 0 {
		out = append(out, models.Message{
			Role: models.RoleSystem,
			Content: fmt.Sprintf("[Context compacted. %d older messages summarized below.]\n%s",
				len(older), summary),
			CreatedAt: time.Now(),
		})
	}
	out = append(out, recent...)
	return out, nil
}

// recentSplitIndex walks backwards from the end of rest collecting
// messages until either RecentMessageCap messages or RecentTokenCap
// estimated tokens are reached, then snaps the boundary backwards past any
// assistant turn whose tool calls are not fully resolved in the window.
func recentSplitIndex(rest []models.Message) int {
	if len(rest) == 0 {
		return 0
	}

	tokens := 0
	count := 0
	idx := len(rest)
	for idx > 0 {
		candidate := rest[idx-1]
		msgTokens := budget.EstimateString(candidate.Content)
		if count >= RecentMessageCap || (count > 0 && tokens+msgTokens > RecentTokenCap) {
			break
		}
		tokens += msgTokens
		count++
		idx--
	}

	return snapBoundary(rest, idx)
}

// snapBoundary moves idx earlier until it does not fall between an
// assistant turn with tool calls and the tool results that answer it: the
// recent window must begin at a point where every assistant turn it
// contains has all of its tool results present in the same window.
func snapBoundary(rest []models.Message, idx int) int {
	for idx > 0 && idx < len(rest) {
		msg := rest[idx]
		if msg.Role == models.RoleTool {
			// A tool message at the boundary means its producing
			// assistant turn is in the older section; pull the boundary
			// back to include that assistant turn and its whole tool
			// block in "recent" instead of splitting it.
			idx--
			continue
		}
		if msg.Role == models.RoleAssistant && len(msg.ToolCalls) > 0 {
			// This assistant turn's tool results must fully resolve
			// before the recent window ends; since they immediately
			// follow in message order, the boundary is safe here only
			// if the assistant turn itself stays with its results on
			// the same side, which it does because we never split
			// inside a tool block above. Safe to stop.
			break
		}
		break
	}
	return idx
}

func renderTranscript(messages []models.Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case models.RoleTool:
			fmt.Fprintf(&b, "[tool %s: %d chars]\n", m.Name, len(m.Content))
		case models.RoleUser, models.RoleAssistant:
			content := m.Content
			if len(content) > TruncateChars {
				content = content[:TruncateChars]
			}
			fmt.Fprintf(&b, "%s: %s\n", m.Role, content)
		}
	}
	return b.String()
}

// naiveSummary is the fallback compactor used when the summarization call
// fails: a bulleted list of role-tagged truncated lines.
func naiveSummary(messages []models.Message) string {
	var b strings.Builder
	for _, m := range messages {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			continue
		}
		content := m.Content
		if len(content) > TruncateChars {
			content = content[:TruncateChars]
		}
		fmt.Fprintf(&b, "- [%s]: %s\n", m.Role, content)
	}
	if b.Len() == 0 {
		return "No prior history."
	}
	return b.String()
}
