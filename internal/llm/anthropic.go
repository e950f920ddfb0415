package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// AnthropicBaseURL is the default Messages API root.
const AnthropicBaseURL = "https://api.anthropic.com/v1"

const anthropicVersion = "2023-06-01"

// AnthropicResponder calls the Anthropic Messages API over plain HTTP.
type AnthropicResponder struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewAnthropic creates the Anthropic responder. baseURL may be empty and
// httpClient may be nil.
func NewAnthropic(apiKey, model, baseURL string, httpClient *http.Client) *AnthropicResponder {
	if baseURL == "" {
		baseURL = AnthropicBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AnthropicResponder{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (r *AnthropicResponder) Name() string  { return "anthropic" }
func (r *AnthropicResponder) Type() string  { return "anthropic" }
func (r *AnthropicResponder) Model() string { return r.model }

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
}

func (r anthropicResponse) joinText() string {
	var b strings.Builder
	for _, c := range r.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// Generate sends one Messages API request.
func (r *AnthropicResponder) Generate(ctx context.Context, req Request) (string, error) {
	payload := anthropicRequest{
		Model:       r.model,
		System:      req.System,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	}
	for _, turn := range req.Turns {
		role := "user"
		if turn.Role == RoleAssistant {
			role = "assistant"
		}
		payload.Messages = append(payload.Messages, anthropicMessage{
			Role:    role,
			Content: []anthropicContent{{Type: "text", Text: turn.Content}},
		})
	}

	body, err := r.doRequest(ctx, &payload)
	if err != nil {
		return "", &ProviderError{Provider: r.Name(), Err: err}
	}
	defer body.Close()

	var resp anthropicResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", &ProviderError{Provider: r.Name(), Err: errors.Wrap(err, "decode response")}
	}
	return resp.joinText(), nil
}

func (r *AnthropicResponder) doRequest(ctx context.Context, payload *anthropicRequest) (io.ReadCloser, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/messages", buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", r.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Errorf("%s: %s", resp.Status, data)
	}
	return resp.Body, nil
}
