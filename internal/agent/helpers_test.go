package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aieditor/backend/internal/llm"
	"github.com/aieditor/backend/internal/model"
	"github.com/aieditor/backend/internal/session"
)

type stubGenerator struct {
	mu       sync.Mutex
	text     string
	degraded bool
	requests []llm.GenerateRequest
}

func (g *stubGenerator) Generate(_ context.Context, req llm.GenerateRequest) llm.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.degraded {
		return llm.Result{Text: g.text, Degraded: true}
	}
	return llm.Result{Text: g.text, Provider: "stub"}
}

func (g *stubGenerator) calls() []llm.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.GenerateRequest(nil), g.requests...)
}

func newTestSession(t *testing.T, workspace string) *model.Session {
	t.Helper()
	sess := model.NewSession("s1", "", time.Now())
	sess.WorkspacePath = workspace
	return sess
}

func setupTestRouter(t *testing.T, handlers ...Handler) (*Router, *session.Store) {
	t.Helper()
	store := session.NewStore(session.Config{})
	_, err := store.Create(context.Background(), "s1", "")
	require.NoError(t, err)
	return NewRouter(store, handlers...), store
}
