package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aieditor/backend/internal/model"
	"github.com/aieditor/backend/internal/session"
)

// Status describes a handler for the agents endpoint.
type Status struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Active      bool       `json:"active"`
	LastUsed    *time.Time `json:"last_used"`
}

// Router classifies inbound messages, runs the selected handler and records
// the exchange in the session store.
type Router struct {
	store    *session.Store
	handlers map[string]Handler
	order    []string
}

// NewRouter creates a router over a fixed set of handlers. Later handlers
// with a duplicate name replace earlier ones.
func NewRouter(store *session.Store, handlers ...Handler) *Router {
	r := &Router{
		store:    store,
		handlers: make(map[string]Handler, len(handlers)),
	}
	for _, h := range handlers {
		if _, ok := r.handlers[h.Name()]; !ok {
			r.order = append(r.order, h.Name())
		}
		r.handlers[h.Name()] = h
	}
	return r
}

// DefaultHandlers returns the code, terminal and file handlers.
func DefaultHandlers(gen Generator, runner CommandRunner, workspaceRoot string) []Handler {
	return []Handler{
		NewCodeHandler(gen),
		NewTerminalHandler(gen, runner, workspaceRoot),
		NewFileHandler(gen, workspaceRoot),
	}
}

// Names returns the handler names in registration order.
func (r *Router) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Status reports every handler.
func (r *Router) Status() map[string]Status {
	out := make(map[string]Status, len(r.handlers))
	for name, h := range r.handlers {
		st := Status{Name: name, Description: h.Description(), Active: true}
		if t := h.LastUsed(); !t.IsZero() {
			st.LastUsed = &t
		}
		out[name] = st
	}
	return out
}

// Select picks the handler for msg. If the classified handler is not
// registered the default handler is used.
func (r *Router) Select(msg model.Message) (Handler, error) {
	if h, ok := r.handlers[Classify(msg.Content)]; ok {
		return h, nil
	}
	if h, ok := r.handlers[DefaultHandler]; ok {
		return h, nil
	}
	return nil, model.ErrNoHandlerAvailable
}

// Route processes msg for the session and returns the responses, each already
// appended to the session log after the inbound message. Handler failures
// come back as a single error message; the only error returned is
// model.ErrSessionNotFound.
//
// Route does not serialize cycles itself; callers hold session.Store.Lock.
func (r *Router) Route(ctx context.Context, sessionID string, msg model.Message) ([]model.Message, error) {
	sess, err := r.store.Get(sessionID)
	if err != nil {
		return nil, err
	}

	var responses []model.Message
	h, err := r.Select(msg)
	if err != nil {
		log.Error().Err(err).Str("component", "agent").Str("session_id", sessionID).Msg("no handler")
		responses = []model.Message{model.NewErrorMessage("", "No suitable handler is available for this message.")}
	} else {
		responses = r.invoke(ctx, h, sess, msg)
	}

	if _, err := r.store.AppendMessage(ctx, sessionID, msg); err != nil {
		return nil, err
	}
	stamped := make([]model.Message, 0, len(responses))
	for _, resp := range responses {
		out, err := r.store.AppendMessage(ctx, sessionID, resp)
		if err != nil {
			return nil, err
		}
		stamped = append(stamped, out)
	}
	return stamped, nil
}

// invoke runs a handler and converts every failure into one error message.
func (r *Router) invoke(ctx context.Context, h Handler, sess *model.Session, msg model.Message) (responses []model.Message) {
	logger := log.With().Str("component", "agent").Str("handler", h.Name()).Str("session_id", sess.ID).Logger()

	defer func() {
		if p := recover(); p != nil {
			logger.Error().Interface("panic", p).Msg("handler panicked")
			responses = []model.Message{model.NewErrorMessage(h.Name(), fmt.Sprintf("Error processing message: %v", p))}
		}
	}()

	start := time.Now()
	out, err := h.Process(ctx, sess, msg)
	if err != nil {
		logger.Error().Err(err).Msg("handler failed")
		return []model.Message{model.NewErrorMessage(h.Name(), fmt.Sprintf("Error processing message: %v", err))}
	}
	if len(out) == 0 {
		logger.Error().Msg("handler returned no responses")
		return []model.Message{model.NewErrorMessage(h.Name(), "Handler produced no response.")}
	}

	for i := range out {
		if out[i].AgentName == "" {
			out[i].AgentName = h.Name()
		}
	}
	logger.Debug().Int("responses", len(out)).Dur("duration", time.Since(start)).Msg("message processed")
	return out
}
