package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arthurgc/graceline/internal/store"
)

func TestSaveMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/conversations/c1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth header = %q", got)
		}
		var req struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		_ = json.NewEncoder(w).Encode(store.Message{
			ID:             "srv_1",
			ConversationID: "c1",
			Role:           store.Role(req.Role),
			Content:        req.Content,
			CreatedAt:      time.Now().UnixMilli(),
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second)
	msg, err := c.SaveMessage(context.Background(), "c1", store.RoleUser, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "srv_1" || msg.Content != "hello" {
		t.Errorf("msg = %+v", msg)
	}
}

func TestAPIErrorTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "boom"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.SaveMessage(context.Background(), "c1", store.RoleUser, "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != 500 || apiErr.Message != "boom" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestListConversationsPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users/u1/conversations" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "10" || r.URL.Query().Get("offset") != "20" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode([]store.Conversation{{ID: "c1", UserID: "u1"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	convs, err := c.ListConversations(context.Background(), "u1", 10, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 || convs[0].ID != "c1" {
		t.Errorf("convs = %+v", convs)
	}
}

func TestDeleteConversation(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	if err := c.DeleteConversation(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/v1/conversations/c1" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
}

func TestUnreachableServerReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, "", 200*time.Millisecond)
	if _, err := c.ListMessages(context.Background(), "c1"); err == nil {
		t.Error("expected error for unreachable server")
	}
}
