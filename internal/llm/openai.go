package llm

import (
	"context"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// DeepSeekBaseURL is the OpenAI-compatible endpoint of DeepSeek.
const DeepSeekBaseURL = "https://api.deepseek.com"

// OpenAIResponder calls an OpenAI-compatible chat completion API. It serves
// both OpenAI and DeepSeek.
type OpenAIResponder struct {
	name   string
	typ    string
	model  string
	client *openai.Client
}

// NewOpenAI creates the OpenAI responder. baseURL may be empty.
func NewOpenAI(apiKey, model, baseURL string) *OpenAIResponder {
	return newOpenAICompatible("openai", "openai", apiKey, model, baseURL)
}

// NewDeepSeek creates the DeepSeek responder. baseURL defaults to DeepSeekBaseURL.
func NewDeepSeek(apiKey, model, baseURL string) *OpenAIResponder {
	if baseURL == "" {
		baseURL = DeepSeekBaseURL
	}
	return newOpenAICompatible("deepseek", "deepseek", apiKey, model, baseURL)
}

func newOpenAICompatible(name, typ, apiKey, model, baseURL string) *OpenAIResponder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIResponder{
		name:   name,
		typ:    typ,
		model:  model,
		client: openai.NewClientWithConfig(cfg),
	}
}

func (r *OpenAIResponder) Name() string  { return r.name }
func (r *OpenAIResponder) Type() string  { return r.typ }
func (r *OpenAIResponder) Model() string { return r.model }

// Generate sends one chat completion request.
func (r *OpenAIResponder) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Turns)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, turn := range req.Turns {
		role := openai.ChatMessageRoleUser
		if turn.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    messages,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return "", &ProviderError{Provider: r.name, Err: errors.Wrap(err, "chat completion")}
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: r.name, Err: errors.New("empty completion")}
	}
	return resp.Choices[0].Message.Content, nil
}
