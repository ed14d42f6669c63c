package chat

import "strings"

const (
	defaultTitle   = "New Conversation"
	titleWordLimit = 6
)

// GenerateConversationTitle derives a conversation title from its first
// user message. A message that is a question becomes the question itself,
// up to and including the first question mark; otherwise the first six
// words, with an ellipsis when that truncates the message.
func GenerateConversationTitle(firstMessage string) string {
	trimmed := strings.TrimSpace(firstMessage)
	if trimmed == "" {
		return defaultTitle
	}
	if i := strings.Index(trimmed, "?"); i >= 0 {
		return trimmed[:i+1]
	}
	words := strings.Fields(trimmed)
	if len(words) > titleWordLimit {
		words = words[:titleWordLimit]
	}
	title := strings.Join(words, " ")
	if len(title) < len(trimmed) {
		title += "..."
	}
	return title
}
