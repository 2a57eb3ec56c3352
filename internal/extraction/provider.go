package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/arteita/fretebot/pkg/logging"
)

// Backend names accepted in configuration.
const (
	ProviderBedrock = "bedrock"
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
)

// ClientConfig selects and configures a model backend.
type ClientConfig struct {
	Provider      string
	Model         string
	Bedrock       BedrockConverseAPI
	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// NewClient builds the LLMClient named by cfg.Provider.
func NewClient(ctx context.Context, cfg ClientConfig) (LLMClient, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderBedrock, "":
		if cfg.Bedrock == nil {
			return nil, fmt.Errorf("extraction: bedrock provider selected without a runtime client")
		}
		return NewBedrockClient(cfg.Bedrock, cfg.Model), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.Model)
	case ProviderOpenAI:
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("extraction: unknown provider %q", cfg.Provider)
	}
}

// NewClientWithFallback builds the primary backend and, when fallback names a
// provider, wraps both in a FallbackClient.
func NewClientWithFallback(ctx context.Context, primary, fallback ClientConfig, logger *logging.Logger) (LLMClient, error) {
	if logger == nil {
		logger = logging.Default()
	}
	client, err := NewClient(ctx, primary)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(fallback.Provider) == "" {
		return client, nil
	}
	secondary, err := NewClient(ctx, fallback)
	if err != nil {
		logger.Warn("fallback oracle backend unavailable", "provider", fallback.Provider, "error", err)
		return client, nil
	}
	return NewFallbackClient(client, secondary, logger), nil
}
