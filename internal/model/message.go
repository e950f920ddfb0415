package model

import (
	"time"
)

// MessageKind discriminates the variants of a conversation message.
type MessageKind string

const (
	MessageKindUser      MessageKind = "user"
	MessageKindAssistant MessageKind = "assistant"
	MessageKindSystem    MessageKind = "system"
	MessageKindError     MessageKind = "error"
	MessageKindAction    MessageKind = "action"
	MessageKindResult    MessageKind = "result"
)

// Valid reports whether k is one of the known message kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindUser, MessageKindAssistant, MessageKindSystem,
		MessageKindError, MessageKindAction, MessageKindResult:
		return true
	}
	return false
}

// Message is one turn in a conversation.
//
// A Message is treated as immutable once constructed; the only field written
// afterwards is SessionID, which the session store stamps on append.
type Message struct {
	Kind      MessageKind    `json:"type"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	AgentName string         `json:"agent_name,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

// NewMessage creates a message of the given kind stamped with the current time.
func NewMessage(kind MessageKind, content string) Message {
	return Message{
		Kind:      kind,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a user message carrying optional metadata.
func NewUserMessage(content string, metadata map[string]any) Message {
	msg := NewMessage(MessageKindUser, content)
	msg.Metadata = metadata
	return msg
}

// NewErrorMessage creates an error message produced by the named handler.
// agentName may be empty when the failure happened outside any handler.
func NewErrorMessage(agentName, content string) Message {
	msg := NewMessage(MessageKindError, content)
	msg.AgentName = agentName
	return msg
}

// MetadataString returns the metadata value for key when it is a non-empty string.
func (m Message) MetadataString(key string) string {
	if m.Metadata == nil {
		return ""
	}
	if v, ok := m.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// Clone returns a copy of the message with its own metadata map.
func (m Message) Clone() Message {
	out := m
	if m.Metadata != nil {
		out.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
