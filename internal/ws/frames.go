package ws

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aieditor/backend/internal/model"
)

// FrameType identifies a WebSocket frame.
type FrameType string

const (
	// Client -> Server frame types
	FrameMessage    FrameType = "message"
	FramePing       FrameType = "ping"
	FrameGetHistory FrameType = "get_history"

	// Server -> Client frame types
	FrameConnectionEstablished FrameType = "connection_established"
	FrameMessageReceived       FrameType = "message_received"
	FrameTyping                FrameType = "typing"
	FrameTypingStop            FrameType = "typing_stop"
	FrameMessageHistory        FrameType = "message_history"
	FramePong                  FrameType = "pong"
	FrameError                 FrameType = "error"
)

const (
	// welcomeText is sent in the connection_established frame.
	welcomeText = "Welcome! How can I help you today?"

	// typingAgent is the typing indicator label.
	typingAgent = "thinking..."

	// historyLimit is the number of messages a get_history frame returns.
	historyLimit = 50
)

// InboundFrame is any frame a client sends. A missing type means "message".
type InboundFrame struct {
	Type     FrameType      `json:"type"`
	Content  string         `json:"content,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DecodeFrame parses an inbound frame.
func DecodeFrame(data []byte) (*InboundFrame, error) {
	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedFrame, err)
	}
	if strings.TrimSpace(string(frame.Type)) == "" {
		frame.Type = FrameMessage
	}
	return &frame, nil
}

// Frame is a frame with no payload (pong, typing_stop).
type Frame struct {
	Type FrameType `json:"type"`
}

type ConnectionEstablishedFrame struct {
	Type      FrameType `json:"type"`
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageFrame carries one message (message_received, message).
type MessageFrame struct {
	Type    FrameType     `json:"type"`
	Message model.Message `json:"message"`
}

type TypingFrame struct {
	Type  FrameType `json:"type"`
	Agent string    `json:"agent,omitempty"`
}

// HistoryFrame always serializes messages as an array, never null.
type HistoryFrame struct {
	Type       FrameType       `json:"type"`
	Messages   []model.Message `json:"messages"`
	TotalCount int             `json:"total_count"`
}

type ErrorFrame struct {
	Type      FrameType `json:"type"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func newErrorFrame(msg string) ErrorFrame {
	return ErrorFrame{Type: FrameError, Error: msg, Timestamp: time.Now()}
}
