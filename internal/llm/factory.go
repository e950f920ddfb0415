package llm

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/aieditor/backend/internal/config"
)

// FromConfig builds the registry from configuration. Providers are registered
// in fixed priority order: OpenAI, Anthropic, DeepSeek, Gemini. Providers
// without an API key are skipped.
func FromConfig(ctx context.Context, cfg config.LLMConfig) *Registry {
	var responders []Responder

	if p := cfg.OpenAI; p.APIKey != "" {
		responders = append(responders, NewOpenAI(p.APIKey, p.Model, p.BaseURL))
	}
	if p := cfg.Anthropic; p.APIKey != "" {
		responders = append(responders, NewAnthropic(p.APIKey, p.Model, p.BaseURL, nil))
	}
	if p := cfg.DeepSeek; p.APIKey != "" {
		responders = append(responders, NewDeepSeek(p.APIKey, p.Model, p.BaseURL))
	}
	if p := cfg.Gemini; p.APIKey != "" {
		gemini, err := NewGemini(ctx, p.APIKey, p.Model, p.BaseURL, nil)
		if err != nil {
			log.Error().Err(err).Str("component", "llm").Msg("gemini responder disabled")
		} else {
			responders = append(responders, gemini)
		}
	}

	registry := NewRegistry(responders, WithTimeout(cfg.Timeout))
	log.Info().Str("component", "llm").Strs("providers", registry.AvailableNames()).Str("default", registry.Default()).Msg("initialized responders")
	return registry
}
