package model

import (
	"time"
)

// ContextKeyWorkspacePath is the session context key holding the workspace root.
const ContextKeyWorkspacePath = "workspace_path"

// Session represents a conversation held by the session store.
type Session struct {
	ID            string         `json:"session_id"`
	UserID        string         `json:"user_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	LastActivity  time.Time      `json:"last_activity"`
	Messages      []Message      `json:"messages"`
	Context       map[string]any `json:"context"`
	WorkspacePath string         `json:"workspace_path,omitempty"`
}

// NewSession creates an empty session with both timestamps set to now.
func NewSession(id, userID string, now time.Time) *Session {
	return &Session{
		ID:           id,
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
		Messages:     []Message{},
		Context:      map[string]any{},
	}
}

// ContextString returns the context value for key when it is a non-empty string.
func (s *Session) ContextString(key string) string {
	if s.Context == nil {
		return ""
	}
	if v, ok := s.Context[key].(string); ok {
		return v
	}
	return ""
}

// Workspace returns the workspace root for the session, falling back to def.
func (s *Session) Workspace(def string) string {
	if s.WorkspacePath != "" {
		return s.WorkspacePath
	}
	if p := s.ContextString(ContextKeyWorkspacePath); p != "" {
		return p
	}
	return def
}

// RecentMessages returns the last limit messages, oldest first.
// A limit of zero or less returns the whole log.
func (s *Session) RecentMessages(limit int) []Message {
	if limit <= 0 || limit >= len(s.Messages) {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-limit:]
}

// IdleFor returns how long the session has been idle at now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}

// Clone returns a deep copy of the session so callers never share the stored log.
func (s *Session) Clone() *Session {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m.Clone()
	}
	out.Context = make(map[string]any, len(s.Context))
	for k, v := range s.Context {
		out.Context[k] = v
	}
	return &out
}
