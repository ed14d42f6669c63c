package cache

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/arthurgc/graceline/internal/store"
)

func testCache(t *testing.T) (*Cache, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, store.DefaultKeys(), DefaultTTL, zap.NewNop()), db
}

func TestConversationsRoundTrip(t *testing.T) {
	c, _ := testCache(t)

	list := []store.Conversation{
		{ID: "c1", UserID: "u1", Title: "First"},
		{ID: "c2", UserID: "u1", Title: "Second", Pinned: true},
	}
	c.SetConversations("u1", list)

	got := c.GetConversations("u1")
	if len(got) != 2 {
		t.Fatalf("got %d conversations, want 2", len(got))
	}
	if got[1].Title != "Second" || !got[1].Pinned {
		t.Errorf("got[1] = %+v", got[1])
	}
}

func TestGetConversationsAbsent(t *testing.T) {
	c, _ := testCache(t)
	if got := c.GetConversations("nobody"); len(got) != 0 {
		t.Errorf("got %d conversations for unknown user", len(got))
	}
}

func TestExpiredEntryIsPurged(t *testing.T) {
	c, db := testCache(t)
	key := store.DefaultKeys().Conversations("u1")

	// Write an entry stamped 25 hours ago directly to the store.
	stale := Entry[store.Conversation]{
		Data:      []store.Conversation{{ID: "c1", UserID: "u1"}},
		Timestamp: time.Now().Add(-25 * time.Hour).UnixMilli(),
	}
	raw, _ := json.Marshal(stale)
	if err := db.SetItem(key, string(raw)); err != nil {
		t.Fatal(err)
	}

	if got := c.GetConversations("u1"); len(got) != 0 {
		t.Errorf("expired entry returned %d conversations, want 0", len(got))
	}

	// The stale key itself must be gone.
	if _, ok, _ := db.GetItem(key); ok {
		t.Error("stale key still present after read")
	}
}

func TestCorruptEntryIsDropped(t *testing.T) {
	c, db := testCache(t)
	key := store.DefaultKeys().Messages("c1")
	if err := db.SetItem(key, "{not json"); err != nil {
		t.Fatal(err)
	}

	if got := c.GetMessages("c1"); len(got) != 0 {
		t.Errorf("corrupt entry returned %d messages", len(got))
	}
	if _, ok, _ := db.GetItem(key); ok {
		t.Error("corrupt key still present after read")
	}
}

func TestAppendMessage(t *testing.T) {
	c, _ := testCache(t)

	c.SetMessages("c1", []store.Message{{ID: "m1", ConversationID: "c1", Content: "first"}})
	c.AppendMessage("c1", store.Message{ID: "m2", ConversationID: "c1", Content: "second"})

	got := c.GetMessages("c1")
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[1].ID != "m2" {
		t.Errorf("got[1].ID = %q, want m2", got[1].ID)
	}
}

func TestAppendMessageToEmptyCache(t *testing.T) {
	c, _ := testCache(t)

	c.AppendMessage("c1", store.Message{ID: "m1", ConversationID: "c1"})
	if got := c.GetMessages("c1"); len(got) != 1 {
		t.Errorf("got %d messages, want 1", len(got))
	}
}

func TestUpdateConversation(t *testing.T) {
	c, _ := testCache(t)

	c.SetConversations("u1", []store.Conversation{{ID: "c1", UserID: "u1", Title: "Old"}})
	c.UpdateConversation("u1", "c1", func(conv *store.Conversation) {
		conv.Title = "New"
		conv.Pinned = true
	})

	got := c.GetConversations("u1")
	if got[0].Title != "New" || !got[0].Pinned {
		t.Errorf("got = %+v", got[0])
	}

	// Updating an absent conversation is a no-op.
	c.UpdateConversation("u1", "missing", func(conv *store.Conversation) {
		conv.Title = "X"
	})
	if got := c.GetConversations("u1"); len(got) != 1 {
		t.Errorf("got %d conversations after no-op update", len(got))
	}
}

func TestRemoveConversationDeletesMessageKey(t *testing.T) {
	c, db := testCache(t)
	keys := store.DefaultKeys()

	c.SetConversations("u1", []store.Conversation{
		{ID: "c1", UserID: "u1"},
		{ID: "c2", UserID: "u1"},
	})
	c.SetMessages("c1", []store.Message{{ID: "m1", ConversationID: "c1"}})

	c.RemoveConversation("u1", "c1")

	got := c.GetConversations("u1")
	if len(got) != 1 || got[0].ID != "c2" {
		t.Errorf("got = %+v, want only c2", got)
	}
	if _, ok, _ := db.GetItem(keys.Messages("c1")); ok {
		t.Error("message cache key survived RemoveConversation")
	}
}

func TestReadErrorDegradesToEmpty(t *testing.T) {
	c, db := testCache(t)
	_ = db.Close()

	if got := c.GetConversations("u1"); len(got) != 0 {
		t.Errorf("read over closed store returned %d conversations", len(got))
	}
	// Writes over a closed store must not panic or propagate.
	c.SetConversations("u1", []store.Conversation{{ID: "c1"}})
	c.AppendMessage("c1", store.Message{ID: "m1"})
}
