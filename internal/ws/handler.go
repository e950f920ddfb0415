package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/aieditor/backend/internal/agent"
	"github.com/aieditor/backend/internal/model"
	"github.com/aieditor/backend/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// Config holds configuration for the WebSocket handler.
type Config struct {
	// Context bounds chat cycles. Cycles are not tied to the connection that
	// started them, so a disconnect lets the cycle finish for other clients.
	Context context.Context

	// CheckOrigin overrides the upgrader's origin check.
	CheckOrigin func(r *http.Request) bool
}

// Handler upgrades connections, decodes frames and runs chat cycles.
type Handler struct {
	hubs     *HubManager
	store    *session.Store
	router   *agent.Router
	upgrader websocket.Upgrader
	ctx      context.Context
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hubs *HubManager, store *session.Store, router *agent.Router, config Config) *Handler {
	ctx := config.Context
	if ctx == nil {
		ctx = context.Background()
	}
	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Handler{
		hubs:   hubs,
		store:  store,
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		ctx: ctx,
	}
}

// HandleConnection upgrades the request and serves the connection for
// sessionID, creating the session on first reference. userID may be empty.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, sessionID, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	client := NewClient(uuid.New().String(), conn, sessionID)
	h.hubs.Register(client)

	if _, err := h.store.Create(h.ctx, sessionID, userID); err != nil {
		log.Error().Err(err).Str("component", "ws").Str("session_id", sessionID).Msg("create session failed")
	}

	log.Info().Str("component", "ws").Str("session_id", sessionID).Str("connection_id", client.ID()).Msg("websocket connected")

	h.reply(client, ConnectionEstablishedFrame{
		Type:      FrameConnectionEstablished,
		SessionID: sessionID,
		Message:   welcomeText,
		Timestamp: time.Now(),
	})

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// HandleFrame processes one raw inbound frame from conn. Errors are answered
// with an error frame to conn only and never close the connection.
func (h *Handler) HandleFrame(conn Connection, data []byte) {
	frame, err := DecodeFrame(data)
	if err != nil {
		log.Debug().Err(err).Str("component", "ws").Str("connection_id", conn.ID()).Msg("malformed frame")
		h.reply(conn, newErrorFrame(err.Error()))
		return
	}

	switch frame.Type {
	case FramePing:
		h.reply(conn, Frame{Type: FramePong})
	case FrameGetHistory:
		h.sendHistory(conn)
	case FrameMessage:
		h.handleChat(conn, frame)
	default:
		h.reply(conn, newErrorFrame(fmt.Sprintf("unknown frame type: %s", frame.Type)))
	}
}

func (h *Handler) handleChat(conn Connection, frame *InboundFrame) {
	if strings.TrimSpace(frame.Content) == "" {
		h.reply(conn, newErrorFrame(model.ErrEmptyContent.Error()))
		return
	}

	// The session may have been swept or deleted while the client stayed connected.
	if _, err := h.store.Create(h.ctx, conn.SessionID(), ""); err != nil {
		h.reply(conn, newErrorFrame(err.Error()))
		return
	}

	msg := model.NewUserMessage(frame.Content, frame.Metadata)
	if _, err := h.RunCycle(h.ctx, conn.SessionID(), msg); err != nil {
		h.reply(conn, newErrorFrame(fmt.Sprintf("error processing message: %v", err)))
	}
}

// RunCycle runs one chat cycle under the session's cycle lock: it broadcasts
// message_received, typing, routes msg, broadcasts typing_stop and then each
// response. Cycles on the same session never interleave.
func (h *Handler) RunCycle(ctx context.Context, sessionID string, msg model.Message) ([]model.Message, error) {
	unlock := h.store.Lock(sessionID)
	defer unlock()

	if !h.store.Exists(sessionID) {
		return nil, model.ErrSessionNotFound
	}

	msg.SessionID = sessionID
	h.broadcast(sessionID, MessageFrame{Type: FrameMessageReceived, Message: msg})
	h.broadcast(sessionID, TypingFrame{Type: FrameTyping, Agent: typingAgent})

	responses, err := h.router.Route(ctx, sessionID, msg)

	h.broadcast(sessionID, Frame{Type: FrameTypingStop})
	if err != nil {
		return nil, err
	}

	for _, resp := range responses {
		h.broadcast(sessionID, MessageFrame{Type: FrameMessage, Message: resp})
	}
	return responses, nil
}

func (h *Handler) sendHistory(conn Connection) {
	messages, err := h.store.RecentMessages(conn.SessionID(), historyLimit)
	if err != nil {
		h.reply(conn, newErrorFrame(err.Error()))
		return
	}
	total, err := h.store.MessageCount(conn.SessionID())
	if err != nil {
		h.reply(conn, newErrorFrame(err.Error()))
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}

	h.reply(conn, HistoryFrame{
		Type:       FrameMessageHistory,
		Messages:   messages,
		TotalCount: total,
	})
}

func (h *Handler) broadcast(sessionID string, frame any) {
	if err := h.hubs.Broadcast(sessionID, frame); err != nil {
		log.Error().Err(err).Str("component", "ws").Str("session_id", sessionID).Msg("failed to encode frame")
	}
}

// reply sends a frame to a single connection.
func (h *Handler) reply(conn Connection, frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Str("component", "ws").Msg("failed to encode frame")
		return
	}
	if err := conn.Send(data); err != nil {
		log.Warn().Err(err).Str("component", "ws").Str("connection_id", conn.ID()).Msg("reply failed")
	}
}

// readPump pumps frames from the WebSocket connection to HandleFrame.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hubs.Unregister(client)
		client.Close()
		log.Info().Str("component", "ws").Str("session_id", client.SessionID()).Str("connection_id", client.ID()).Msg("websocket disconnected")
	}()

	conn := client.Conn()
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("component", "ws").Str("connection_id", client.ID()).Msg("websocket error")
			}
			return
		}

		h.HandleFrame(client, data)

		// A long chat cycle must not eat into the pong window.
		conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// writePump pumps queued frames to the WebSocket connection and keeps it
// alive with pings. A failed write closes the client at once so broadcasts
// stop queueing frames for it.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	conn := client.Conn()
	defer func() {
		ticker.Stop()
		h.hubs.Unregister(client)
		client.Close()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Each frame goes out as its own WebSocket message.
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(client.SendChan())
			for i := 0; i < n; i++ {
				queued, ok := <-client.SendChan()
				if !ok {
					conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
