// Package queue holds outbound messages that could not be delivered
// synchronously. Entries live as a JSON list under a single kv key and
// survive restarts; a drain pass attempts delivery in FIFO order so the
// remote store sees messages in conversation order.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arthurgc/graceline/internal/bus"
	"github.com/arthurgc/graceline/internal/store"
)

// DefaultMaxRetries is the delivery attempt budget before an entry is
// parked as failed.
const DefaultMaxRetries = 3

// Saver delivers one message to the remote store.
type Saver interface {
	SaveMessage(ctx context.Context, conversationID string, role store.Role, content string) (*store.Message, error)
}

// Queue is the durable outbox. All list mutations are read-modify-write
// over the single queue key, serialized by an internal mutex; drains are
// additionally serialized against each other so no entry is picked up by
// two passes.
type Queue struct {
	db         *store.DB
	key        string
	saver      Saver
	bus        *bus.Bus
	logger     *zap.Logger
	maxRetries int

	mu      sync.Mutex // guards list read-modify-write
	drainMu sync.Mutex // serializes whole drain passes
}

// New creates a queue over the given store key.
func New(db *store.DB, keys store.Keys, saver Saver, b *bus.Bus, logger *zap.Logger, maxRetries int) *Queue {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Queue{
		db:         db,
		key:        keys.Queue,
		saver:      saver,
		bus:        b,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

func (q *Queue) load() ([]store.QueuedMessage, error) {
	raw, ok, err := q.db.GetItem(q.key)
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var entries []store.QueuedMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decode queue: %w", err)
	}
	return entries, nil
}

func (q *Queue) save(entries []store.QueuedMessage) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	if err := q.db.SetItem(q.key, string(raw)); err != nil {
		return fmt.Errorf("write queue: %w", err)
	}
	return nil
}

func newEntryID() string {
	return fmt.Sprintf("queued_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// Enqueue appends a pending entry and returns it. Input validation is the
// caller's responsibility; only store I/O errors propagate.
func (q *Queue) Enqueue(conversationID string, role store.Role, content string) (*store.QueuedMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load()
	if err != nil {
		return nil, err
	}
	entry := store.QueuedMessage{
		ID:             newEntryID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      time.Now().UnixMilli(),
		Status:         store.StatusPending,
	}
	if err := q.save(append(entries, entry)); err != nil {
		return nil, err
	}

	if q.bus != nil {
		q.bus.Publish(bus.Event{
			Kind:      bus.KindQueueEnqueued,
			Timestamp: time.Now(),
			Payload:   map[string]string{"id": entry.ID, "conversation_id": conversationID},
		})
	}
	return &entry, nil
}

// Dequeue removes the entry with the given id. Absent ids are a no-op.
func (q *Queue) Dequeue(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(id)
}

func (q *Queue) removeLocked(id string) error {
	entries, err := q.load()
	if err != nil {
		return err
	}
	kept := entries[:0]
	removed := false
	for _, e := range entries {
		if e.ID == id {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	if !removed {
		return nil
	}
	return q.save(kept)
}

// Update merges fields into the entry with the given id via the mutate
// callback. Absent ids are a no-op.
func (q *Queue) Update(id string, mutate func(*store.QueuedMessage)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.updateLocked(id, mutate)
}

func (q *Queue) updateLocked(id string, mutate func(*store.QueuedMessage)) error {
	entries, err := q.load()
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].ID == id {
			mutate(&entries[i])
			return q.save(entries)
		}
	}
	return nil
}

// List returns every entry, in queue order.
func (q *Queue) List() ([]store.QueuedMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

// ListForConversation returns the entries belonging to one conversation.
func (q *Queue) ListForConversation(conversationID string) ([]store.QueuedMessage, error) {
	entries, err := q.List()
	if err != nil {
		return nil, err
	}
	var out []store.QueuedMessage
	for _, e := range entries {
		if e.ConversationID == conversationID {
			out = append(out, e)
		}
	}
	return out, nil
}

// HasPending reports whether the queue holds any entry, regardless of
// status.
func (q *Queue) HasPending() (bool, error) {
	entries, err := q.List()
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// Drain attempts delivery of every pending entry, sequentially and in
// queue order. A failed entry gets its retry count bumped and either goes
// back to pending or, at the retry budget, is parked as failed with the
// last error recorded. One entry's failure never aborts the rest of the
// pass. An empty queue returns immediately without writes.
func (q *Queue) Drain(ctx context.Context) error {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	entries, err := q.List()
	if err != nil {
		return err
	}
	var pending []store.QueuedMessage
	for _, e := range entries {
		if e.Status == store.StatusPending {
			pending = append(pending, e)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	delivered := 0
	for _, entry := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := q.deliver(ctx, entry); err != nil {
			q.logger.Warn("queued message delivery failed",
				zap.String("id", entry.ID),
				zap.String("conversation_id", entry.ConversationID),
				zap.Error(err))
			continue
		}
		delivered++
	}

	if q.bus != nil {
		q.bus.Publish(bus.Event{
			Kind:      bus.KindQueueDrained,
			Timestamp: time.Now(),
			Payload:   map[string]int{"delivered": delivered, "attempted": len(pending)},
		})
	}
	return nil
}

func (q *Queue) deliver(ctx context.Context, entry store.QueuedMessage) error {
	if err := q.Update(entry.ID, func(e *store.QueuedMessage) {
		e.Status = store.StatusProcessing
	}); err != nil {
		return err
	}

	msg, sendErr := q.saver.SaveMessage(ctx, entry.ConversationID, entry.Role, entry.Content)
	if sendErr == nil {
		if err := q.Dequeue(entry.ID); err != nil {
			return err
		}
		if q.bus != nil {
			q.bus.Publish(bus.Event{
				Kind:      bus.KindQueueDelivered,
				Timestamp: time.Now(),
				Payload:   map[string]string{"id": entry.ID, "server_id": msg.ID},
			})
		}
		return nil
	}

	retries := entry.RetryCount + 1
	if err := q.Update(entry.ID, func(e *store.QueuedMessage) {
		e.RetryCount = retries
		if retries >= q.maxRetries {
			e.Status = store.StatusFailed
			e.Error = sendErr.Error()
		} else {
			e.Status = store.StatusPending
		}
	}); err != nil {
		return err
	}
	if retries >= q.maxRetries && q.bus != nil {
		q.bus.Publish(bus.Event{
			Kind:      bus.KindQueueDeliveryFailed,
			Timestamp: time.Now(),
			Payload:   map[string]string{"id": entry.ID, "error": sendErr.Error()},
		})
	}
	return sendErr
}

// ClearFailed removes every terminally failed entry.
func (q *Queue) ClearFailed() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load()
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.Status != store.StatusFailed {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}
	return q.save(kept)
}

// RetryFailed resets every failed entry to pending with a fresh retry
// budget, then drains immediately.
func (q *Queue) RetryFailed(ctx context.Context) error {
	q.mu.Lock()
	entries, err := q.load()
	if err != nil {
		q.mu.Unlock()
		return err
	}
	changed := false
	for i := range entries {
		if entries[i].Status == store.StatusFailed {
			entries[i].Status = store.StatusPending
			entries[i].RetryCount = 0
			entries[i].Error = ""
			changed = true
		}
	}
	if changed {
		if err := q.save(entries); err != nil {
			q.mu.Unlock()
			return err
		}
	}
	q.mu.Unlock()

	return q.Drain(ctx)
}

// ResetProcessing flips entries stuck in processing back to pending.
// Called once at startup: a drain interrupted by a crash leaves its
// in-flight entry marked processing, and nothing else would ever pick it
// up again. Returns the number of entries reset.
func (q *Queue) ResetProcessing() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load()
	if err != nil {
		return 0, err
	}
	reset := 0
	for i := range entries {
		if entries[i].Status == store.StatusProcessing {
			entries[i].Status = store.StatusPending
			reset++
		}
	}
	if reset == 0 {
		return 0, nil
	}
	if err := q.save(entries); err != nil {
		return 0, err
	}
	return reset, nil
}
