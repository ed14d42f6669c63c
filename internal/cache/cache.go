// Package cache keeps a time-boxed local mirror of remote conversations
// and messages so reads succeed while offline. Entries expire 24 hours
// after being written; expiry is evaluated lazily at read time and stale
// keys are purged on the spot. Reads never fail: storage errors degrade to
// an empty result. Writes are best-effort and must never break the
// caller's primary operation, so their errors are logged and dropped.
package cache

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/arthurgc/graceline/internal/store"
)

// DefaultTTL is the cache entry time-to-live.
const DefaultTTL = 24 * time.Hour

// Entry wraps a cached snapshot with its capture time.
type Entry[T any] struct {
	Data      []T   `json:"data"`
	Timestamp int64 `json:"timestamp"`
}

// Cache mirrors remote collections into the local store.
type Cache struct {
	db     *store.DB
	keys   store.Keys
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a cache with the given key layout and TTL.
func New(db *store.DB, keys store.Keys, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{db: db, keys: keys, ttl: ttl, logger: logger}
}

func readEntry[T any](c *Cache, key string) []T {
	raw, ok, err := c.db.GetItem(key)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	var entry Entry[T]
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.Warn("cache entry corrupt, dropping", zap.String("key", key), zap.Error(err))
		c.purge(key)
		return nil
	}
	if time.Now().UnixMilli()-entry.Timestamp >= c.ttl.Milliseconds() {
		c.purge(key)
		return nil
	}
	return entry.Data
}

func writeEntry[T any](c *Cache, key string, data []T) {
	raw, err := json.Marshal(Entry[T]{Data: data, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		c.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.db.SetItem(key, string(raw)); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) purge(key string) {
	if err := c.db.RemoveItem(key); err != nil {
		c.logger.Warn("cache purge failed", zap.String("key", key), zap.Error(err))
	}
}

// GetConversations returns the cached conversation list for a user, or an
// empty list when absent or expired.
func (c *Cache) GetConversations(userID string) []store.Conversation {
	return readEntry[store.Conversation](c, c.keys.Conversations(userID))
}

// SetConversations overwrites the cached conversation list with a fresh
// timestamp.
func (c *Cache) SetConversations(userID string, list []store.Conversation) {
	writeEntry(c, c.keys.Conversations(userID), list)
}

// GetMessages returns the cached message list for a conversation, or an
// empty list when absent or expired.
func (c *Cache) GetMessages(conversationID string) []store.Message {
	return readEntry[store.Message](c, c.keys.Messages(conversationID))
}

// SetMessages overwrites the cached message list with a fresh timestamp.
func (c *Cache) SetMessages(conversationID string, list []store.Message) {
	writeEntry(c, c.keys.Messages(conversationID), list)
}

// AppendMessage appends one message to the cached list, keeping the cache
// optimistic after every accepted send regardless of delivery path.
func (c *Cache) AppendMessage(conversationID string, msg store.Message) {
	list := c.GetMessages(conversationID)
	writeEntry(c, c.keys.Messages(conversationID), append(list, msg))
}

// UpdateConversation applies mutate to the matching cached conversation.
// Absent conversations are a no-op.
func (c *Cache) UpdateConversation(userID, conversationID string, mutate func(*store.Conversation)) {
	list := c.GetConversations(userID)
	for i := range list {
		if list[i].ID == conversationID {
			mutate(&list[i])
			writeEntry(c, c.keys.Conversations(userID), list)
			return
		}
	}
}

// RemoveConversation drops the conversation from the cached list and
// deletes its message cache key entirely, so orphaned message keys do not
// accumulate.
func (c *Cache) RemoveConversation(userID, conversationID string) {
	list := c.GetConversations(userID)
	kept := list[:0]
	for _, conv := range list {
		if conv.ID != conversationID {
			kept = append(kept, conv)
		}
	}
	writeEntry(c, c.keys.Conversations(userID), kept)
	c.purge(c.keys.Messages(conversationID))
}
