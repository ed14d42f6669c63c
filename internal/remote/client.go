// Package remote is the HTTP client for the remote conversation store.
// The store is an opaque request/response service; it is reachable only
// while online and every call here can fail, which upstream layers absorb
// by queueing writes and serving cached reads.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/arthurgc/graceline/internal/store"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the remote store.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote store: %d %s", e.Status, e.Message)
}

// Client talks JSON over HTTP to the remote store.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the given base URL. An empty timeout
// falls back to 30s.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(raw, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type saveMessageRequest struct {
	Role    store.Role `json:"role"`
	Content string     `json:"content"`
}

// SaveMessage persists one message and returns the server record with its
// assigned id.
func (c *Client) SaveMessage(ctx context.Context, conversationID string, role store.Role, content string) (*store.Message, error) {
	var msg store.Message
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, saveMessageRequest{Role: role, Content: content}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns a conversation's messages ordered by creation time
// ascending.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	var msgs []store.Message
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListConversations returns a user's conversations ordered by most
// recently updated first. Zero limit and offset request the full list.
func (c *Client) ListConversations(ctx context.Context, userID string, limit, offset int) ([]store.Conversation, error) {
	path := "/v1/users/" + url.PathEscape(userID) + "/conversations"
	if limit > 0 || offset > 0 {
		q := url.Values{}
		if limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}
		if offset > 0 {
			q.Set("offset", strconv.Itoa(offset))
		}
		path += "?" + q.Encode()
	}
	var convs []store.Conversation
	if err := c.do(ctx, http.MethodGet, path, nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

type createConversationRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
}

// CreateConversation creates a conversation and returns the server record.
func (c *Client) CreateConversation(ctx context.Context, userID, title string) (*store.Conversation, error) {
	var conv store.Conversation
	if err := c.do(ctx, http.MethodPost, "/v1/conversations", createConversationRequest{UserID: userID, Title: title}, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ConversationPatch carries the mutable conversation fields. Nil fields
// are left untouched by the server.
type ConversationPatch struct {
	Title  *string `json:"title,omitempty"`
	Pinned *bool   `json:"pinned,omitempty"`
}

// UpdateConversation applies a partial update.
func (c *Client) UpdateConversation(ctx context.Context, conversationID string, patch ConversationPatch) (*store.Conversation, error) {
	var conv store.Conversation
	path := "/v1/conversations/" + url.PathEscape(conversationID)
	if err := c.do(ctx, http.MethodPatch, path, patch, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// DeleteConversation removes a conversation and its messages remotely.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	path := "/v1/conversations/" + url.PathEscape(conversationID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}
