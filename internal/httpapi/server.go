// Package httpapi exposes the sync core to the chat UI over a local HTTP
// API. The UI never learns about connectivity: every write below either
// hits the remote store or lands in the queue, and reads always answer
// from the best available source.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arthurgc/graceline/internal/chat"
	"github.com/arthurgc/graceline/internal/netmon"
	"github.com/arthurgc/graceline/internal/queue"
	"github.com/arthurgc/graceline/internal/store"
	intsync "github.com/arthurgc/graceline/internal/sync"
)

// Server wraps the HTTP server lifecycle.
type Server struct {
	srv     *http.Server
	logger  *zap.Logger
	chat    *chat.Service
	queue   *queue.Queue
	monitor *netmon.Monitor
	orch    *intsync.Orchestrator
}

// NewServer builds the router and the underlying http.Server.
func NewServer(addr string, svc *chat.Service, q *queue.Queue, monitor *netmon.Monitor, orch *intsync.Orchestrator, logger *zap.Logger) *Server {
	s := &Server{
		logger:  logger,
		chat:    svc,
		queue:   q,
		monitor: monitor,
		orch:    orch,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/v1")
	{
		v1.GET("/status", s.getStatus)
		v1.POST("/network/check", s.checkNetwork)
		v1.PUT("/active", s.setActive)

		v1.GET("/users/:userID/conversations", s.listConversations)
		v1.POST("/users/:userID/conversations", s.createConversation)
		v1.PATCH("/users/:userID/conversations/:conversationID", s.updateConversation)
		v1.DELETE("/users/:userID/conversations/:conversationID", s.deleteConversation)

		v1.GET("/conversations/:conversationID/messages", s.listMessages)
		v1.POST("/conversations/:conversationID/messages", s.saveMessage)

		v1.GET("/queue", s.listQueue)
		v1.POST("/queue/retry", s.retryFailed)
		v1.POST("/queue/clear-failed", s.clearFailed)
	}

	s.srv = &http.Server{Addr: addr, Handler: router}
	return s
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start begins serving. Blocks until Stop or failure.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.srv.Addr))
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	_ = s.srv.Shutdown(ctx)
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// failFrom maps service errors onto HTTP statuses: validation errors carry
// their own status, anything else is a 500.
func failFrom(c *gin.Context, err error) {
	var appErr *chat.Error
	if errors.As(err, &appErr) {
		fail(c, appErr.Status, appErr.Message)
		return
	}
	fail(c, http.StatusInternalServerError, err.Error())
}

func (s *Server) getStatus(c *gin.Context) {
	entries, err := s.queue.List()
	if err != nil {
		failFrom(c, err)
		return
	}
	pending, failed := 0, 0
	for _, e := range entries {
		switch e.Status {
		case store.StatusFailed:
			failed++
		default:
			pending++
		}
	}
	ok(c, gin.H{
		"online":         s.monitor.IsOnline(),
		"queued":         pending,
		"failed":         failed,
		"last_sync_time": s.orch.LastSyncTime(),
	})
}

func (s *Server) checkNetwork(c *gin.Context) {
	online := s.monitor.CheckConnection(c.Request.Context())
	ok(c, gin.H{"online": online})
}

type setActiveReq struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
}

// setActive tells the daemon what the UI is currently showing, so a
// reconnect refresh targets the right data.
func (s *Server) setActive(c *gin.Context) {
	var req setActiveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	s.orch.SetActive(req.UserID, req.ConversationID)
	ok(c, gin.H{"active": true})
}

func (s *Server) listConversations(c *gin.Context) {
	userID := c.Param("userID")
	limit := intQuery(c, "limit")
	offset := intQuery(c, "offset")

	convs, err := s.chat.GetUserConversations(c.Request.Context(), userID, limit, offset)
	if err != nil {
		failFrom(c, err)
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	ok(c, convs)
}

type createConversationReq struct {
	FirstMessage string `json:"first_message"`
}

func (s *Server) createConversation(c *gin.Context) {
	var req createConversationReq
	_ = c.ShouldBindJSON(&req) // an empty body means an untitled conversation

	conv, err := s.chat.CreateConversation(c.Request.Context(), c.Param("userID"), req.FirstMessage)
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, conv)
}

type updateConversationReq struct {
	Title  *string `json:"title"`
	Pinned *bool   `json:"pinned"`
}

func (s *Server) updateConversation(c *gin.Context) {
	var req updateConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	userID := c.Param("userID")
	conversationID := c.Param("conversationID")

	if req.Title != nil {
		if err := s.chat.UpdateConversationTitle(c.Request.Context(), userID, conversationID, *req.Title); err != nil {
			failFrom(c, err)
			return
		}
	}
	if req.Pinned != nil {
		if err := s.chat.SetConversationPinned(c.Request.Context(), userID, conversationID, *req.Pinned); err != nil {
			failFrom(c, err)
			return
		}
	}
	ok(c, gin.H{"updated": true})
}

func (s *Server) deleteConversation(c *gin.Context) {
	err := s.chat.DeleteConversation(c.Request.Context(), c.Param("conversationID"), c.Param("userID"))
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, gin.H{"deleted": true})
}

func (s *Server) listMessages(c *gin.Context) {
	msgs, err := s.chat.GetConversationMessages(c.Request.Context(), c.Param("conversationID"))
	if err != nil {
		failFrom(c, err)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	ok(c, msgs)
}

type saveMessageReq struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) saveMessage(c *gin.Context) {
	var req saveMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	role := store.Role(req.Role)
	if role == "" {
		role = store.RoleUser
	}

	msg, err := s.chat.SaveMessage(c.Request.Context(), c.Param("conversationID"), role, req.Content)
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, msg)
}

func (s *Server) listQueue(c *gin.Context) {
	var entries []store.QueuedMessage
	var err error
	if conversationID := c.Query("conversation_id"); conversationID != "" {
		entries, err = s.queue.ListForConversation(conversationID)
	} else {
		entries, err = s.queue.List()
	}
	if err != nil {
		failFrom(c, err)
		return
	}
	if entries == nil {
		entries = []store.QueuedMessage{}
	}
	ok(c, entries)
}

func (s *Server) retryFailed(c *gin.Context) {
	if err := s.queue.RetryFailed(c.Request.Context()); err != nil {
		failFrom(c, err)
		return
	}
	ok(c, gin.H{"retried": true})
}

func (s *Server) clearFailed(c *gin.Context) {
	if err := s.queue.ClearFailed(); err != nil {
		failFrom(c, err)
		return
	}
	ok(c, gin.H{"cleared": true})
}

func intQuery(c *gin.Context, name string) int {
	n, _ := strconv.Atoi(c.Query(name))
	if n < 0 {
		return 0
	}
	return n
}
