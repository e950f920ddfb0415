package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aieditor/backend/internal/model"
)

type fakeResponder struct {
	name  string
	reply string
	err   error
	delay time.Duration

	mu    sync.Mutex
	calls []Request
}

func (f *fakeResponder) Name() string  { return f.name }
func (f *fakeResponder) Type() string  { return "fake" }
func (f *fakeResponder) Model() string { return f.name + "-model" }

func (f *fakeResponder) Generate(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeResponder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestGenerateFallsBackToNextResponder(t *testing.T) {
	a := &fakeResponder{name: "a", err: errors.New("quota exceeded")}
	b := &fakeResponder{name: "b", reply: "from b"}
	registry := NewRegistry([]Responder{a, b})

	require.Equal(t, "a", registry.Default())

	result := registry.Generate(context.Background(), GenerateRequest{Prompt: "hello"})
	require.Equal(t, "from b", result.Text)
	require.Equal(t, "b", result.Provider)
	require.False(t, result.Degraded)
	require.Equal(t, 1, a.callCount())
	require.Equal(t, 1, b.callCount())
}

func TestGenerateWithoutResponders(t *testing.T) {
	registry := NewRegistry(nil)

	result := registry.Generate(context.Background(), GenerateRequest{Prompt: "hello"})
	require.True(t, result.Degraded)
	require.Contains(t, result.Text, "No responder is configured")
	require.Empty(t, registry.AvailableNames())
	require.Empty(t, registry.Describe())

	_, err := registry.Resolve("")
	require.ErrorIs(t, err, model.ErrNoResponderConfigured)
}

func TestGenerateAllFailReportsLastError(t *testing.T) {
	a := &fakeResponder{name: "a", err: errors.New("first failure")}
	b := &fakeResponder{name: "b", err: errors.New("second failure")}
	registry := NewRegistry([]Responder{a, b})

	result := registry.Generate(context.Background(), GenerateRequest{Prompt: "hello"})
	require.True(t, result.Degraded)
	require.Empty(t, result.Provider)
	require.True(t, strings.HasPrefix(result.Text, "Response generation failed:"))
	require.Contains(t, result.Text, "second failure")
}

func TestGeneratePreferredResponder(t *testing.T) {
	a := &fakeResponder{name: "a", reply: "from a"}
	b := &fakeResponder{name: "b", reply: "from b"}
	c := &fakeResponder{name: "c", reply: "from c"}
	registry := NewRegistry([]Responder{a, b, c})

	result := registry.Generate(context.Background(), GenerateRequest{Prompt: "hi", Preferred: "c"})
	require.Equal(t, "from c", result.Text)
	require.Zero(t, a.callCount())

	// Unknown names fall back to the default.
	result = registry.Generate(context.Background(), GenerateRequest{Prompt: "hi", Preferred: "missing"})
	require.Equal(t, "from a", result.Text)
}

func TestGenerateFallbackSkipsOnlyTheFailedResponder(t *testing.T) {
	a := &fakeResponder{name: "a", reply: "from a"}
	b := &fakeResponder{name: "b", err: errors.New("down")}
	c := &fakeResponder{name: "c", reply: "from c"}
	registry := NewRegistry([]Responder{a, b, c})

	// Preferred b fails; the loop runs in registration order, so a answers.
	result := registry.Generate(context.Background(), GenerateRequest{Prompt: "hi", Preferred: "b"})
	require.Equal(t, "from a", result.Text)
	require.Equal(t, 1, b.callCount())
	require.Zero(t, c.callCount())
}

func TestGenerateTimeoutTriggersFallback(t *testing.T) {
	slow := &fakeResponder{name: "slow", reply: "late", delay: time.Second}
	fast := &fakeResponder{name: "fast", reply: "on time"}
	registry := NewRegistry([]Responder{slow, fast}, WithTimeout(20*time.Millisecond))

	result := registry.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	require.Equal(t, "on time", result.Text)
}

func TestGeneratePanicIsContained(t *testing.T) {
	registry := NewRegistry([]Responder{panicResponder{}})

	result := registry.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	require.True(t, result.Degraded)
	require.Contains(t, result.Text, "panic")
}

type panicResponder struct{}

func (panicResponder) Name() string  { return "panic" }
func (panicResponder) Type() string  { return "fake" }
func (panicResponder) Model() string { return "none" }
func (panicResponder) Generate(context.Context, Request) (string, error) {
	panic("boom")
}

func TestDescribe(t *testing.T) {
	registry := NewRegistry([]Responder{
		&fakeResponder{name: "a"},
		&fakeResponder{name: "b"},
		&fakeResponder{name: "a"},
	})

	require.Equal(t, []string{"a", "b"}, registry.AvailableNames())
	info := registry.Describe()
	require.Len(t, info, 2)
	require.True(t, info["a"].IsDefault)
	require.False(t, info["b"].IsDefault)
	require.Equal(t, "b-model", info["b"].Model)
	require.Equal(t, "fake", info["b"].Type)
}

func TestBuildRequestFiltersHistory(t *testing.T) {
	history := []model.Message{
		model.NewMessage(model.MessageKindUser, "old user"),
		model.NewMessage(model.MessageKindAssistant, "old answer"),
		model.NewMessage(model.MessageKindUser, "u1"),
		model.NewMessage(model.MessageKindSystem, "system note"),
		model.NewMessage(model.MessageKindAssistant, "a1"),
		model.NewMessage(model.MessageKindError, "failure"),
		model.NewMessage(model.MessageKindUser, "u2"),
	}

	req := BuildRequest("", history, "prompt")
	require.Equal(t, DefaultSystemPrompt, req.System)
	require.Equal(t, []Turn{
		{Role: RoleUser, Content: "u1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "u2"},
		{Role: RoleUser, Content: "prompt"},
	}, req.Turns)

	req = BuildRequest("custom", nil, "only")
	require.Equal(t, "custom", req.System)
	require.Equal(t, []Turn{{Role: RoleUser, Content: "only"}}, req.Turns)
}

func TestProviderErrorUnwraps(t *testing.T) {
	cause := errors.New("rate limited")
	err := error(&ProviderError{Provider: "openai", Err: cause})

	require.ErrorIs(t, err, cause)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "openai", perr.Provider)
	require.Equal(t, "openai: rate limited", err.Error())
}
