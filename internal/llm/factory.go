package llm

import (
	"context"

	"github.com/shopclerk/shopclerk/internal/config"
	"github.com/shopclerk/shopclerk/internal/logging"
)

// FromConfig builds a Client from the llm config section.
func FromConfig(cfg config.LLMConfig, log *logging.Logger) Client {
	switch cfg.Provider {
	case "anthropic":
		if cfg.APIKey == "" {
			log.Warn().Msg("no llm api key configured, falling back to mock provider")
			return NewCannedClient()
		}
		log.Info().Str("provider", "anthropic").Str("model", cfg.Model).Msg("llm provider configured")
		return NewAnthropicClient(cfg.APIKey, cfg.Model, cfg.Endpoint)
	default:
		return NewCannedClient()
	}
}

// NewCannedClient returns a mock client with deterministic safe answers, used
// when no real provider is configured. It judges everything safe and selects
// no action, so the engine degrades to pattern/intent/rule layers and plain
// replies.
func NewCannedClient() *MockClient {
	return &MockClient{
		ProviderName: "mock",
		CompleteFunc: func(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
			return &CompletionResponse{
				Content: `{"safe": true, "reason": "mock provider", "severity": "low"}`,
				Model:   "mock",
			}, nil
		},
	}
}
