package ws

import (
	"context"

	"github.com/aieditor/backend/internal/agent"
	"github.com/aieditor/backend/internal/model"
	"github.com/aieditor/backend/internal/session"
)

// Service ties the hub manager and the frame handler together. HTTP callers
// use it to run chat cycles and to drop connections of deleted sessions.
type Service struct {
	hubManager *HubManager
	handler    *Handler
	store      *session.Store
}

// NewService creates a new WebSocket service. publisher may be nil.
func NewService(store *session.Store, router *agent.Router, publisher FramePublisher, config Config) *Service {
	hubManager := NewHubManager(publisher)
	return &Service{
		hubManager: hubManager,
		handler:    NewHandler(hubManager, store, router, config),
		store:      store,
	}
}

// Handler returns the WebSocket handler.
func (s *Service) Handler() *Handler {
	return s.handler
}

// HubManager returns the hub manager.
func (s *Service) HubManager() *HubManager {
	return s.hubManager
}

// Submit runs a chat cycle for a message that did not arrive over a socket.
// Connected clients of the session see the same frames as for a socket message.
func (s *Service) Submit(ctx context.Context, sessionID string, msg model.Message) ([]model.Message, error) {
	return s.handler.RunCycle(ctx, sessionID, msg)
}

// DeleteSession removes the session from the store and closes its connections.
// It reports whether the session existed.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) bool {
	existed := s.store.Delete(ctx, sessionID)
	s.DetachSession(sessionID)
	return existed
}

// DetachSession closes every connection of the session.
func (s *Service) DetachSession(sessionID string) {
	s.hubManager.Remove(sessionID)
}

// GetSessionClientCount returns the number of connected clients for a session.
func (s *Service) GetSessionClientCount(sessionID string) int {
	return s.hubManager.SessionConnectionCount(sessionID)
}

// ConnectionCount returns the number of live connections across all sessions.
func (s *Service) ConnectionCount() int {
	return s.hubManager.ConnectionCount()
}

// Close closes all WebSocket connections.
func (s *Service) Close() {
	s.hubManager.Close()
}
