package llm

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

// GeminiResponder calls the Gemini API through the genai SDK.
type GeminiResponder struct {
	model  string
	client *genai.Client
}

// NewGemini creates the Gemini responder. baseURL may be empty and
// httpClient may be nil.
func NewGemini(ctx context.Context, apiKey, model, baseURL string, httpClient *http.Client) (*GeminiResponder, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cfg.HTTPOptions.BaseURL = baseURL
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create genai client")
	}
	return &GeminiResponder{model: model, client: client}, nil
}

func (r *GeminiResponder) Name() string  { return "gemini" }
func (r *GeminiResponder) Type() string  { return "gemini" }
func (r *GeminiResponder) Model() string { return r.model }

// Generate sends one GenerateContent request.
func (r *GeminiResponder) Generate(ctx context.Context, req Request) (string, error) {
	contents := make([]*genai.Content, 0, len(req.Turns))
	for _, turn := range req.Turns {
		var role genai.Role = genai.RoleUser
		if turn.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](defaultTemperature),
		MaxOutputTokens: defaultMaxTokens,
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := r.client.Models.GenerateContent(ctx, r.model, contents, config)
	if err != nil {
		return "", &ProviderError{Provider: r.Name(), Err: errors.Wrap(err, "generate content")}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &ProviderError{Provider: r.Name(), Err: errors.New("no candidates returned (check safety filters)")}
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}
