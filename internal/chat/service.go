// Package chat is the data-access façade the rest of the application
// calls. It owns the online/offline branching: writes go to the remote
// store when the network is up and fall back to the durable queue when it
// is not (or when the remote fails despite the flag saying online), reads
// prefer fresh remote data and degrade to the offline cache. Callers never
// see transient network errors, only validation errors.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arthurgc/graceline/internal/cache"
	"github.com/arthurgc/graceline/internal/netmon"
	"github.com/arthurgc/graceline/internal/queue"
	"github.com/arthurgc/graceline/internal/remote"
	"github.com/arthurgc/graceline/internal/store"
)

// Remote is the subset of the remote store client the façade depends on.
type Remote interface {
	SaveMessage(ctx context.Context, conversationID string, role store.Role, content string) (*store.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]store.Message, error)
	ListConversations(ctx context.Context, userID string, limit, offset int) ([]store.Conversation, error)
	CreateConversation(ctx context.Context, userID, title string) (*store.Conversation, error)
	UpdateConversation(ctx context.Context, conversationID string, patch remote.ConversationPatch) (*store.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// Service is the data access layer.
type Service struct {
	monitor *netmon.Monitor
	cache   *cache.Cache
	queue   *queue.Queue
	remote  Remote
	logger  *zap.Logger
}

// NewService creates the façade.
func NewService(monitor *netmon.Monitor, c *cache.Cache, q *queue.Queue, r Remote, logger *zap.Logger) *Service {
	return &Service{monitor: monitor, cache: c, queue: q, remote: r, logger: logger}
}

// SaveMessage accepts a message for delivery. Online it writes through to
// the remote store; offline, or when the remote write fails, it queues the
// message instead. In every path the cache gains the message immediately,
// so the caller's view is optimistic. The returned message carries either
// the server-assigned id or, for queued sends, the temporary queue id.
func (s *Service) SaveMessage(ctx context.Context, conversationID string, role store.Role, content string) (*store.Message, error) {
	if conversationID == "" {
		return nil, errMissingConversation()
	}
	if content == "" {
		return nil, errEmptyContent()
	}

	if !s.monitor.IsOnline() {
		return s.queueMessage(conversationID, role, content)
	}

	msg, err := s.remote.SaveMessage(ctx, conversationID, role, content)
	if err != nil {
		// Flaky connection while nominally online: never lose the
		// message, take the same path as offline.
		s.logger.Warn("remote save failed, queueing message",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return s.queueMessage(conversationID, role, content)
	}

	s.cache.AppendMessage(conversationID, *msg)
	return msg, nil
}

func (s *Service) queueMessage(conversationID string, role store.Role, content string) (*store.Message, error) {
	entry, err := s.queue.Enqueue(conversationID, role, content)
	if err != nil {
		return nil, fmt.Errorf("queue message: %w", err)
	}
	msg := store.Message{
		ID:             entry.ID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      entry.Timestamp,
	}
	s.cache.AppendMessage(conversationID, msg)
	return &msg, nil
}

// GetConversationMessages returns a conversation's messages, oldest first.
// Offline the cached list is the answer; online a remote fetch refreshes
// the cache, and a fetch failure degrades to the cached list instead of
// surfacing an error.
func (s *Service) GetConversationMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	if conversationID == "" {
		return nil, errMissingConversation()
	}

	cached := s.cache.GetMessages(conversationID)
	if !s.monitor.IsOnline() {
		return cached, nil
	}

	msgs, err := s.remote.ListMessages(ctx, conversationID)
	if err != nil {
		s.logger.Warn("remote message fetch failed, serving cache",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return cached, nil
	}
	s.cache.SetMessages(conversationID, msgs)
	return msgs, nil
}

// GetUserConversations returns a user's conversations, most recently
// updated first, with the same offline/fallback shape as message reads. A
// successful un-paginated fetch is the app's natural "full refresh"
// moment, so it also kicks off an opportunistic queue drain in the
// background.
func (s *Service) GetUserConversations(ctx context.Context, userID string, limit, offset int) ([]store.Conversation, error) {
	if userID == "" {
		return nil, errMissingUser()
	}

	cached := s.cache.GetConversations(userID)
	if !s.monitor.IsOnline() {
		return cached, nil
	}

	convs, err := s.remote.ListConversations(ctx, userID, limit, offset)
	if err != nil {
		s.logger.Warn("remote conversation fetch failed, serving cache",
			zap.String("user_id", userID), zap.Error(err))
		return cached, nil
	}
	if limit == 0 && offset == 0 {
		s.cache.SetConversations(userID, convs)
		go func() {
			if err := s.queue.Drain(context.Background()); err != nil {
				s.logger.Warn("opportunistic drain failed", zap.Error(err))
			}
		}()
	}
	return convs, nil
}

// CreateConversation starts a new conversation, titling it from the first
// user message. Offline (or on remote failure) the conversation exists
// only in the cache under a locally generated id until a later refresh
// replaces it with server state.
func (s *Service) CreateConversation(ctx context.Context, userID, firstMessage string) (*store.Conversation, error) {
	if userID == "" {
		return nil, errMissingUser()
	}
	title := GenerateConversationTitle(firstMessage)

	var conv *store.Conversation
	if s.monitor.IsOnline() {
		created, err := s.remote.CreateConversation(ctx, userID, title)
		if err != nil {
			s.logger.Warn("remote conversation create failed, creating locally",
				zap.String("user_id", userID), zap.Error(err))
		} else {
			conv = created
		}
	}
	if conv == nil {
		now := time.Now().UnixMilli()
		conv = &store.Conversation{
			ID:        fmt.Sprintf("conv_%d_%s", now, uuid.NewString()[:8]),
			UserID:    userID,
			Title:     title,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	list := s.cache.GetConversations(userID)
	s.cache.SetConversations(userID, append([]store.Conversation{*conv}, list...))
	return conv, nil
}

// UpdateConversationTitle renames a conversation, cache first, remote
// best-effort.
func (s *Service) UpdateConversationTitle(ctx context.Context, userID, conversationID, title string) error {
	if userID == "" {
		return errMissingUser()
	}
	if conversationID == "" {
		return errMissingConversation()
	}
	if title == "" {
		return errEmptyTitle()
	}

	now := time.Now().UnixMilli()
	s.cache.UpdateConversation(userID, conversationID, func(conv *store.Conversation) {
		conv.Title = title
		conv.UpdatedAt = now
	})
	if s.monitor.IsOnline() {
		if _, err := s.remote.UpdateConversation(ctx, conversationID, remote.ConversationPatch{Title: &title}); err != nil {
			s.logger.Warn("remote title update failed",
				zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}
	return nil
}

// SetConversationPinned toggles the pinned flag, cache first, remote
// best-effort.
func (s *Service) SetConversationPinned(ctx context.Context, userID, conversationID string, pinned bool) error {
	if userID == "" {
		return errMissingUser()
	}
	if conversationID == "" {
		return errMissingConversation()
	}

	now := time.Now().UnixMilli()
	s.cache.UpdateConversation(userID, conversationID, func(conv *store.Conversation) {
		conv.Pinned = pinned
		conv.UpdatedAt = now
	})
	if s.monitor.IsOnline() {
		if _, err := s.remote.UpdateConversation(ctx, conversationID, remote.ConversationPatch{Pinned: &pinned}); err != nil {
			s.logger.Warn("remote pin update failed",
				zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}
	return nil
}

// DeleteConversation removes a conversation locally and, when online,
// remotely. The local removal is authoritative: a remote failure is
// logged once and never retried or surfaced. An offline delete is not
// queued for later remote delivery — a known gap: the remote record
// survives until some later online delete, or forever if the app is
// removed first.
func (s *Service) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	if userID == "" {
		return errMissingUser()
	}
	if conversationID == "" {
		return errMissingConversation()
	}

	s.cache.RemoveConversation(userID, conversationID)

	if !s.monitor.IsOnline() {
		return nil
	}
	if err := s.remote.DeleteConversation(ctx, conversationID); err != nil {
		s.logger.Warn("remote conversation delete failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
	return nil
}
