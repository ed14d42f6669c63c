package store

import "fmt"

// Keys enumerates the storage key templates used by the sync core. They
// are injected rather than hard-coded so tests can run in an isolated
// namespace.
type Keys struct {
	Queue               string
	ConversationsFormat string
	MessagesFormat      string
	LastSync            string
}

// DefaultKeys returns the production key layout.
func DefaultKeys() Keys {
	return Keys{
		Queue:               "message_queue",
		ConversationsFormat: "cached_conversations_%s",
		MessagesFormat:      "cached_messages_%s",
		LastSync:            "last_sync_time",
	}
}

// Conversations returns the cache key for a user's conversation list.
func (k Keys) Conversations(userID string) string {
	return fmt.Sprintf(k.ConversationsFormat, userID)
}

// Messages returns the cache key for a conversation's message list.
func (k Keys) Messages(conversationID string) string {
	return fmt.Sprintf(k.MessagesFormat, conversationID)
}
