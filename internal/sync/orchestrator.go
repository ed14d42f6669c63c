// Package sync glues reconnection to reconciliation: when connectivity
// returns, pending queued messages are drained to the remote store and the
// cache is refreshed for whatever the user is currently looking at.
package sync

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arthurgc/graceline/internal/bus"
	"github.com/arthurgc/graceline/internal/chat"
	"github.com/arthurgc/graceline/internal/netmon"
	"github.com/arthurgc/graceline/internal/queue"
	"github.com/arthurgc/graceline/internal/store"
)

// Orchestrator listens for offline→online transitions and runs the
// reconciliation pass.
type Orchestrator struct {
	monitor *netmon.Monitor
	queue   *queue.Queue
	chat    *chat.Service
	db      *store.DB
	keys    store.Keys
	bus     *bus.Bus
	logger  *zap.Logger

	mu                 sync.Mutex
	activeUser         string
	activeConversation string

	unsub  func()
	cancel context.CancelFunc
}

// New creates an orchestrator.
func New(monitor *netmon.Monitor, q *queue.Queue, svc *chat.Service, db *store.DB, keys store.Keys, b *bus.Bus, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		monitor: monitor,
		queue:   q,
		chat:    svc,
		db:      db,
		keys:    keys,
		bus:     b,
		logger:  logger,
	}
}

// SetActive records what the UI is currently looking at, so a reconnect
// refresh targets the right user and conversation. Empty values clear the
// corresponding target.
func (o *Orchestrator) SetActive(userID, conversationID string) {
	o.mu.Lock()
	o.activeUser = userID
	o.activeConversation = conversationID
	o.mu.Unlock()
}

func (o *Orchestrator) active() (string, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeUser, o.activeConversation
}

// Start repairs queue state left by an interrupted drain and subscribes
// to connectivity changes. Safe to call once per process launch; there is
// no cross-launch drain state to resume.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, o.cancel = context.WithCancel(ctx)

	reset, err := o.queue.ResetProcessing()
	if err != nil {
		return err
	}
	if reset > 0 {
		o.logger.Info("reset interrupted deliveries", zap.Int("entries", reset))
	}

	o.unsub = o.monitor.AddListener(func(online bool) {
		if !online {
			return
		}
		go o.reconcile(ctx)
	})
	return nil
}

// Stop unsubscribes from connectivity changes.
func (o *Orchestrator) Stop() {
	if o.unsub != nil {
		o.unsub()
	}
	if o.cancel != nil {
		o.cancel()
	}
}

func (o *Orchestrator) reconcile(ctx context.Context) {
	has, err := o.queue.HasPending()
	if err != nil {
		o.logger.Error("queue check failed", zap.Error(err))
		return
	}
	if has {
		o.logger.Info("connectivity restored, draining queue")
		if err := o.queue.Drain(ctx); err != nil {
			o.logger.Error("reconnect drain failed", zap.Error(err))
		}
	}

	userID, conversationID := o.active()
	if userID != "" {
		if _, err := o.chat.GetUserConversations(ctx, userID, 0, 0); err != nil {
			o.logger.Warn("conversation refresh failed", zap.Error(err))
		}
	}
	if conversationID != "" {
		if _, err := o.chat.GetConversationMessages(ctx, conversationID); err != nil {
			o.logger.Warn("message refresh failed", zap.Error(err))
		}
	}

	now := time.Now().UnixMilli()
	if err := o.db.SetItem(o.keys.LastSync, strconv.FormatInt(now, 10)); err != nil {
		o.logger.Warn("failed to record sync time", zap.Error(err))
	}
	if o.bus != nil {
		o.bus.Publish(bus.Event{
			Kind:      bus.KindSyncCompleted,
			Timestamp: time.Now(),
			Payload:   now,
		})
	}
}

// LastSyncTime returns the epoch-millis of the last completed
// reconciliation, zero if none has run yet.
func (o *Orchestrator) LastSyncTime() int64 {
	raw, ok, err := o.db.GetItem(o.keys.LastSync)
	if err != nil || !ok {
		return 0
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}
