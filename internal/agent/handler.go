// Package agent classifies chat messages and dispatches them to handlers.
package agent

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/aieditor/backend/internal/llm"
	"github.com/aieditor/backend/internal/model"
)

// Handler turns one inbound message into one or more response messages.
// Implementations hold no per-session state.
type Handler interface {
	Name() string
	Description() string
	// LastUsed is advisory; zero means never.
	LastUsed() time.Time
	Process(ctx context.Context, sess *model.Session, msg model.Message) ([]model.Message, error)
}

// Generator is the text-generation capability handlers depend on.
// *llm.Registry implements it.
type Generator interface {
	Generate(ctx context.Context, req llm.GenerateRequest) llm.Result
}

// MetadataProvider is the inbound metadata key naming a preferred responder.
const MetadataProvider = "provider"

// usage tracks the advisory last-used time of a handler.
type usage struct {
	last atomic.Int64
}

func (u *usage) touch() {
	u.last.Store(time.Now().UnixNano())
}

func (u *usage) LastUsed() time.Time {
	ns := u.last.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// ask runs one generation for a handler using the session history.
func ask(ctx context.Context, gen Generator, sess *model.Session, msg model.Message, system string) llm.Result {
	return gen.Generate(ctx, llm.GenerateRequest{
		Prompt:    msg.Content,
		System:    system,
		History:   sess.Messages,
		Preferred: msg.MetadataString(MetadataProvider),
	})
}

// reply builds a response message from a handler. A degraded generation
// result becomes an error message.
func reply(handler string, result llm.Result, metadata map[string]any) model.Message {
	if result.Degraded {
		return model.NewErrorMessage(handler, result.Text)
	}
	msg := model.NewMessage(model.MessageKindAssistant, result.Text)
	msg.AgentName = handler
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["provider"] = result.Provider
	msg.Metadata = metadata
	return msg
}
