package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/arthurgc/graceline/internal/bus"
	"github.com/arthurgc/graceline/internal/cache"
	"github.com/arthurgc/graceline/internal/chat"
	"github.com/arthurgc/graceline/internal/netmon"
	"github.com/arthurgc/graceline/internal/queue"
	"github.com/arthurgc/graceline/internal/remote"
	"github.com/arthurgc/graceline/internal/store"
)

// fakeRemote is an in-memory remote store recording delivery order.
type fakeRemote struct {
	mu        chan struct{}
	delivered []string
	messages  map[string][]store.Message
	nextID    int
}

func newFakeRemote() *fakeRemote {
	f := &fakeRemote{mu: make(chan struct{}, 1), messages: make(map[string][]store.Message)}
	f.mu <- struct{}{}
	return f
}

func (f *fakeRemote) SaveMessage(_ context.Context, conversationID string, role store.Role, content string) (*store.Message, error) {
	<-f.mu
	defer func() { f.mu <- struct{}{} }()
	f.nextID++
	msg := store.Message{
		ID:             fmt.Sprintf("srv_%d", f.nextID),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UnixMilli(),
	}
	f.delivered = append(f.delivered, content)
	f.messages[conversationID] = append(f.messages[conversationID], msg)
	return &msg, nil
}

func (f *fakeRemote) Delivered() []string {
	<-f.mu
	defer func() { f.mu <- struct{}{} }()
	return append([]string(nil), f.delivered...)
}

func (f *fakeRemote) ListMessages(_ context.Context, conversationID string) ([]store.Message, error) {
	<-f.mu
	defer func() { f.mu <- struct{}{} }()
	return append([]store.Message(nil), f.messages[conversationID]...), nil
}

func (f *fakeRemote) ListConversations(_ context.Context, userID string, limit, offset int) ([]store.Conversation, error) {
	return []store.Conversation{{ID: "c1", UserID: userID, Title: "Conv"}}, nil
}

func (f *fakeRemote) CreateConversation(_ context.Context, userID, title string) (*store.Conversation, error) {
	return &store.Conversation{ID: "c_new", UserID: userID, Title: title}, nil
}

func (f *fakeRemote) UpdateConversation(_ context.Context, conversationID string, patch remote.ConversationPatch) (*store.Conversation, error) {
	return &store.Conversation{ID: conversationID}, nil
}

func (f *fakeRemote) DeleteConversation(_ context.Context, conversationID string) error {
	return nil
}

type world struct {
	db      *store.DB
	monitor *netmon.Monitor
	queue   *queue.Queue
	cache   *cache.Cache
	svc     *chat.Service
	orch    *Orchestrator
	remote  *fakeRemote
	bus     *bus.Bus
}

func newWorld(t *testing.T) *world {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	keys := store.DefaultKeys()
	b := bus.New()
	fake := newFakeRemote()
	monitor := netmon.New(netmon.Options{}, b, logger)
	q := queue.New(db, keys, fake, b, logger, 3)
	c := cache.New(db, keys, cache.DefaultTTL, logger)
	svc := chat.NewService(monitor, c, q, fake, logger)
	orch := New(monitor, q, svc, db, keys, b, logger)
	return &world{db: db, monitor: monitor, queue: q, cache: c, svc: svc, orch: orch, remote: fake, bus: b}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestOfflineSendsDrainOnReconnect covers the full offline round trip:
// three sends while offline queue up, connectivity returns, all three are
// delivered in order and the queue comes back empty.
func TestOfflineSendsDrainOnReconnect(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	if err := w.orch.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.orch.Stop()
	w.orch.SetActive("u1", "c1")

	w.monitor.SetOnline(false)
	for _, content := range []string{"first", "second", "third"} {
		msg, err := w.svc.SaveMessage(ctx, "c1", store.RoleUser, content)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(msg.ID, "queued_") {
			t.Errorf("offline send id = %q", msg.ID)
		}
	}
	entries, _ := w.queue.List()
	if len(entries) != 3 {
		t.Fatalf("queue holds %d entries, want 3", len(entries))
	}

	w.monitor.SetOnline(true)

	waitFor(t, "queue drain", func() bool {
		has, _ := w.queue.HasPending()
		return !has
	})

	delivered := w.remote.Delivered()
	if len(delivered) != 3 {
		t.Fatalf("delivered = %v, want 3 messages", delivered)
	}
	for i, want := range []string{"first", "second", "third"} {
		if delivered[i] != want {
			t.Errorf("delivered[%d] = %q, want %q", i, delivered[i], want)
		}
	}

	// After the refresh the cache holds server-assigned ids.
	waitFor(t, "cache refresh", func() bool {
		msgs := w.cache.GetMessages("c1")
		return len(msgs) == 3 && strings.HasPrefix(msgs[0].ID, "srv_")
	})
}

func TestReconnectRecordsLastSyncTime(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	if err := w.orch.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.orch.Stop()

	if got := w.orch.LastSyncTime(); got != 0 {
		t.Errorf("LastSyncTime before any sync = %d, want 0", got)
	}

	w.monitor.SetOnline(false)
	w.monitor.SetOnline(true)

	waitFor(t, "last sync time", func() bool { return w.orch.LastSyncTime() > 0 })
}

func TestReconcilePublishesSyncCompleted(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	ch, unsub := w.bus.Subscribe("sync.", 10)
	defer unsub()

	if err := w.orch.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.orch.Stop()

	w.monitor.SetOnline(false)
	w.monitor.SetOnline(true)

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindSyncCompleted {
			t.Errorf("kind = %q", evt.Kind)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no sync.completed event")
	}
}

func TestStartResetsInterruptedDeliveries(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	entry, err := w.queue.Enqueue("c1", store.RoleUser, "stuck")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.queue.Update(entry.ID, func(e *store.QueuedMessage) {
		e.Status = store.StatusProcessing
	}); err != nil {
		t.Fatal(err)
	}

	if err := w.orch.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.orch.Stop()

	entries, _ := w.queue.List()
	if entries[0].Status != store.StatusPending {
		t.Errorf("status after Start = %q, want pending", entries[0].Status)
	}
}

func TestGoingOfflineDoesNotReconcile(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	if err := w.orch.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.orch.Stop()

	w.monitor.SetOnline(false)
	time.Sleep(50 * time.Millisecond)

	if got := w.orch.LastSyncTime(); got != 0 {
		t.Errorf("reconcile ran on offline transition (last sync = %d)", got)
	}
}
