package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/aieditor/backend/internal/model"
)

const (
	// DefaultSystemPrompt is used when the caller supplies no instructions.
	DefaultSystemPrompt = "You are a helpful AI assistant."

	// historyWindow is how many trailing history entries are considered
	// before filtering to user and assistant turns.
	historyWindow = 5

	notConfiguredText = "No responder is configured. Set at least one of OPENAI_API_KEY, ANTHROPIC_API_KEY, DEEPSEEK_API_KEY or GEMINI_API_KEY."
)

// GenerateRequest is the input to Registry.Generate.
type GenerateRequest struct {
	Prompt  string
	System  string
	History []model.Message
	// Preferred names the responder to try first. Unknown names are ignored.
	Preferred string
}

// Result is the outcome of Registry.Generate.
type Result struct {
	Text string
	// Provider is the responder that produced Text, empty when all failed.
	Provider string
	// Degraded is set when Text is a failure description rather than
	// generated content.
	Degraded bool
}

// Info describes one registered responder.
type Info struct {
	Model     string `json:"model"`
	Type      string `json:"type"`
	IsDefault bool   `json:"is_default"`
}

// Registry holds the configured responders in priority order. The first one
// registered is the default. A Registry is read-only after construction.
type Registry struct {
	responders []Responder
	byName     map[string]Responder
	timeout    time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeout bounds each individual responder call.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.timeout = d
	}
}

// NewRegistry creates a registry. Responders with a duplicate name are
// skipped; the first wins.
func NewRegistry(responders []Responder, opts ...Option) *Registry {
	r := &Registry{
		byName: make(map[string]Responder, len(responders)),
	}
	for _, resp := range responders {
		if _, dup := r.byName[resp.Name()]; dup {
			log.Warn().Str("component", "llm").Str("provider", resp.Name()).Msg("duplicate responder ignored")
			continue
		}
		r.responders = append(r.responders, resp)
		r.byName[resp.Name()] = resp
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Default returns the name of the default responder, or "" when none is registered.
func (r *Registry) Default() string {
	if len(r.responders) == 0 {
		return ""
	}
	return r.responders[0].Name()
}

// AvailableNames returns the registered responder names in priority order.
func (r *Registry) AvailableNames() []string {
	names := make([]string, len(r.responders))
	for i, resp := range r.responders {
		names[i] = resp.Name()
	}
	return names
}

// Describe reports model, type and default flag per responder.
func (r *Registry) Describe() map[string]Info {
	def := r.Default()
	out := make(map[string]Info, len(r.responders))
	for _, resp := range r.responders {
		out[resp.Name()] = Info{
			Model:     resp.Model(),
			Type:      resp.Type(),
			IsDefault: resp.Name() == def,
		}
	}
	return out
}

// Resolve picks the responder to try first.
func (r *Registry) Resolve(preferred string) (Responder, error) {
	if resp, ok := r.byName[preferred]; ok {
		return resp, nil
	}
	if len(r.responders) == 0 {
		return nil, model.ErrNoResponderConfigured
	}
	return r.responders[0], nil
}

// Generate produces text for the request. It never returns an error: when
// the resolved responder fails every other responder is tried once, in
// registration order, and if all fail the result text describes the last
// failure and Degraded is set.
func (r *Registry) Generate(ctx context.Context, req GenerateRequest) Result {
	first, err := r.Resolve(req.Preferred)
	if err != nil {
		return Result{Text: notConfiguredText, Degraded: true}
	}

	call := BuildRequest(req.System, req.History, req.Prompt)

	text, err := r.invoke(ctx, first, call)
	if err == nil {
		log.Debug().Str("component", "llm").Str("provider", first.Name()).Msg("generated response")
		return Result{Text: text, Provider: first.Name()}
	}
	log.Error().Err(err).Str("component", "llm").Str("provider", first.Name()).Msg("responder failed")

	lastErr := err
	for _, resp := range r.responders {
		if resp.Name() == first.Name() {
			continue
		}
		text, err := r.invoke(ctx, resp, call)
		if err != nil {
			log.Error().Err(err).Str("component", "llm").Str("provider", resp.Name()).Msg("fallback responder failed")
			lastErr = err
			continue
		}
		log.Info().Str("component", "llm").Str("provider", resp.Name()).Msg("generated response using fallback")
		return Result{Text: text, Provider: resp.Name()}
	}

	return Result{
		Text:     fmt.Sprintf("Response generation failed: %v", lastErr),
		Degraded: true,
	}
}

func (r *Registry) invoke(ctx context.Context, resp Responder, req Request) (text string, err error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			err = &ProviderError{Provider: resp.Name(), Err: errors.Errorf("panic: %v", p)}
		}
	}()

	text, err = resp.Generate(ctx, req)
	if err != nil {
		var perr *ProviderError
		if !errors.As(err, &perr) {
			err = &ProviderError{Provider: resp.Name(), Err: err}
		}
		return "", err
	}
	return text, nil
}

// BuildRequest assembles the call context: instructions, the last few history
// entries that are user or assistant messages, then the prompt.
func BuildRequest(system string, history []model.Message, prompt string) Request {
	if system == "" {
		system = DefaultSystemPrompt
	}

	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	turns := make([]Turn, 0, len(history)+1)
	for _, msg := range history {
		switch msg.Kind {
		case model.MessageKindUser:
			turns = append(turns, Turn{Role: RoleUser, Content: msg.Content})
		case model.MessageKindAssistant:
			turns = append(turns, Turn{Role: RoleAssistant, Content: msg.Content})
		}
	}
	turns = append(turns, Turn{Role: RoleUser, Content: prompt})

	return Request{System: system, Turns: turns}
}
