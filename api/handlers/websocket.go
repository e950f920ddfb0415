package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/aieditor/backend/internal/ws"
)

// WebSocketHandler attaches WebSocket connections to sessions.
type WebSocketHandler struct {
	wsHandler *ws.Handler
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(wsHandler *ws.Handler) *WebSocketHandler {
	return &WebSocketHandler{
		wsHandler: wsHandler,
	}
}

// Attach handles GET /ws/:id. The session is created on first reference.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	sessionID := c.Param("id")

	// On failure the upgrader has already written the HTTP error.
	if err := h.wsHandler.HandleConnection(c.Writer, c.Request, sessionID, getUserID(c)); err != nil {
		log.Debug().Err(err).Str("component", "http").Str("session_id", sessionID).Msg("websocket upgrade failed")
	}
}

// RegisterRoutes registers the WebSocket route on a Gin router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws/:id", h.Attach)
}
