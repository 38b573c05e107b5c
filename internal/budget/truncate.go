package budget

import "fmt"

// TruncateResult enforces the per-tool-result budget check: never
// drop a result silently. If no room remains it is replaced by an
// "Error: no room in context budget" string; if partial room remains the
// head of the content is kept with a truncation footer.
func TruncateResult(content string, usedTokens, maxTokens int) string {
	remainingTokens := maxTokens - usedTokens
	if remainingTokens <= 0 {
		return fmt.Sprintf("Error: no room in context budget (used %d of %d)", usedTokens, maxTokens)
	}

	remainingChars := remainingTokens * CharsPerToken
	if len(content) <= remainingChars {
		return content
	}

	removed := len(content) - remainingChars
	if remainingChars < 0 {
		remainingChars = 0
	}
	head := content[:remainingChars]
	return fmt.Sprintf("%s...[truncated: %d chars removed to fit budget]", head, removed)
}
