package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aieditor/backend/internal/model"
	"github.com/aieditor/backend/internal/session"
	"github.com/aieditor/backend/internal/ws"
)

// defaultMessageLimit is used by the messages endpoint when no limit is given.
const defaultMessageLimit = 50

// SessionHandler handles HTTP requests for sessions and their messages.
type SessionHandler struct {
	store   *session.Store
	service *ws.Service
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(store *session.Store, service *ws.Service) *SessionHandler {
	return &SessionHandler{
		store:   store,
		service: service,
	}
}

// CreateSessionRequest represents the request body for creating a session.
type CreateSessionRequest struct {
	SessionID     string `json:"session_id"`
	WorkspacePath string `json:"workspace_path"`
}

// SendMessageRequest represents the request body for sending a message.
type SendMessageRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID            string         `json:"session_id"`
	UserID        string         `json:"user_id,omitempty"`
	WorkspacePath string         `json:"workspace_path,omitempty"`
	Context       map[string]any `json:"context"`
	MessageCount  int            `json:"message_count"`
	Connections   int            `json:"connections"`
	CreatedAt     string         `json:"created_at"`
	LastActivity  string         `json:"last_activity"`
}

// MessagesResponse is returned by the messages endpoint.
type MessagesResponse struct {
	SessionID  string          `json:"session_id"`
	Messages   []model.Message `json:"messages"`
	TotalCount int             `json:"total_count"`
}

// SendMessageResponse is returned after a chat cycle.
type SendMessageResponse struct {
	SessionID string          `json:"session_id"`
	Responses []model.Message `json:"responses"`
}

func (h *SessionHandler) toSessionResponse(s *model.Session) *SessionResponse {
	return &SessionResponse{
		ID:            s.ID,
		UserID:        s.UserID,
		WorkspacePath: s.WorkspacePath,
		Context:       s.Context,
		MessageCount:  len(s.Messages),
		Connections:   h.service.GetSessionClientCount(s.ID),
		CreatedAt:     s.CreatedAt.Format(time.RFC3339),
		LastActivity:  s.LastActivity.Format(time.RFC3339),
	}
}

// Create handles POST /api/v1/sessions. An existing session_id returns the
// stored session with 200; a new session is returned with 201.
func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			sendError(c, http.StatusBadRequest, CodeValidation, "Invalid request body: "+err.Error())
			return
		}
	}

	ctx := c.Request.Context()
	existed := req.SessionID != "" && h.store.Exists(req.SessionID)

	sess, err := h.store.Create(ctx, req.SessionID, getUserID(c))
	if err != nil {
		sendError(c, http.StatusInternalServerError, CodeInternal, "Failed to create session: "+err.Error())
		return
	}

	if req.WorkspacePath != "" {
		id := sess.ID
		if err := h.store.SetWorkspace(ctx, id, req.WorkspacePath); err != nil {
			h.sendSessionError(c, id, err)
			return
		}
		if sess, err = h.store.Get(id); err != nil {
			h.sendSessionError(c, id, err)
			return
		}
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	c.JSON(status, h.toSessionResponse(sess))
}

// List handles GET /api/v1/sessions. Identified callers only see their own
// sessions.
func (h *SessionHandler) List(c *gin.Context) {
	var sessions []*model.Session
	if userID := getUserID(c); userID != "" {
		sessions = h.store.ListByUser(userID)
	} else {
		sessions = h.store.ListActive()
	}

	response := make([]*SessionResponse, len(sessions))
	for i, sess := range sessions {
		response[i] = h.toSessionResponse(sess)
	}

	c.JSON(http.StatusOK, response)
}

// Get handles GET /api/v1/sessions/:id.
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID := c.Param("id")

	sess, err := h.store.Get(sessionID)
	if err != nil {
		h.sendSessionError(c, sessionID, err)
		return
	}

	c.JSON(http.StatusOK, h.toSessionResponse(sess))
}

// Delete handles DELETE /api/v1/sessions/:id. Live connections of the session
// are closed.
func (h *SessionHandler) Delete(c *gin.Context) {
	sessionID := c.Param("id")

	if !h.service.DeleteSession(c.Request.Context(), sessionID) {
		h.sendSessionError(c, sessionID, model.ErrSessionNotFound)
		return
	}

	c.Status(http.StatusNoContent)
}

// Messages handles GET /api/v1/sessions/:id/messages?limit=N.
func (h *SessionHandler) Messages(c *gin.Context) {
	sessionID := c.Param("id")

	limit := defaultMessageLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			sendError(c, http.StatusBadRequest, CodeValidation, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	messages, err := h.store.RecentMessages(sessionID, limit)
	if err != nil {
		h.sendSessionError(c, sessionID, err)
		return
	}
	total, err := h.store.MessageCount(sessionID)
	if err != nil {
		h.sendSessionError(c, sessionID, err)
		return
	}

	c.JSON(http.StatusOK, MessagesResponse{
		SessionID:  sessionID,
		Messages:   messages,
		TotalCount: total,
	})
}

// SendMessage handles POST /api/v1/sessions/:id/messages. It runs a full chat
// cycle; connected clients receive the same frames as for a socket message.
func (h *SessionHandler) SendMessage(c *gin.Context) {
	sessionID := c.Param("id")

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, CodeValidation, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		sendError(c, http.StatusBadRequest, CodeValidation, model.ErrEmptyContent.Error())
		return
	}

	// The cycle outlives the request: a client hanging up must not cancel
	// responder calls whose results other connections are waiting on.
	ctx := context.WithoutCancel(c.Request.Context())

	msg := model.NewUserMessage(req.Content, req.Metadata)
	responses, err := h.service.Submit(ctx, sessionID, msg)
	if err != nil {
		h.sendSessionError(c, sessionID, err)
		return
	}

	c.JSON(http.StatusOK, SendMessageResponse{
		SessionID: sessionID,
		Responses: responses,
	})
}

// ClearMessages handles DELETE /api/v1/sessions/:id/messages. The session
// itself is kept.
func (h *SessionHandler) ClearMessages(c *gin.Context) {
	sessionID := c.Param("id")

	if err := h.store.ClearMessages(c.Request.Context(), sessionID); err != nil {
		h.sendSessionError(c, sessionID, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// UpdateContext handles PUT /api/v1/sessions/:id/context. Every key of the
// JSON object body is set on the session context.
func (h *SessionHandler) UpdateContext(c *gin.Context) {
	sessionID := c.Param("id")

	var values map[string]any
	if err := c.ShouldBindJSON(&values); err != nil {
		sendError(c, http.StatusBadRequest, CodeValidation, "Invalid request body: "+err.Error())
		return
	}
	if len(values) == 0 {
		sendError(c, http.StatusBadRequest, CodeValidation, "At least one context key is required")
		return
	}

	ctx := c.Request.Context()
	for key, value := range values {
		if err := h.store.UpdateContext(ctx, sessionID, key, value); err != nil {
			h.sendSessionError(c, sessionID, err)
			return
		}
	}

	sess, err := h.store.Get(sessionID)
	if err != nil {
		h.sendSessionError(c, sessionID, err)
		return
	}
	c.JSON(http.StatusOK, h.toSessionResponse(sess))
}

func (h *SessionHandler) sendSessionError(c *gin.Context, sessionID string, err error) {
	if errors.Is(err, model.ErrSessionNotFound) {
		sendError(c, http.StatusNotFound, CodeSessionNotFound, "Session "+sessionID+" not found")
		return
	}
	sendError(c, http.StatusInternalServerError, CodeInternal, err.Error())
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/sessions")
	{
		sessions.POST("", h.Create)
		sessions.GET("", h.List)
		sessions.GET("/:id", h.Get)
		sessions.DELETE("/:id", h.Delete)
		sessions.GET("/:id/messages", h.Messages)
		sessions.POST("/:id/messages", h.SendMessage)
		sessions.DELETE("/:id/messages", h.ClearMessages)
		sessions.PUT("/:id/context", h.UpdateContext)
	}
}
