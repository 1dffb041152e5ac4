package llm

import (
	"context"
	"fmt"
	"strings"
)

// Provider names accepted by NewClient.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// NewClient builds the client for a provider name.
func NewClient(ctx context.Context, provider, apiKey, model string, opts ...Option) (Client, error) {
	switch strings.ToLower(provider) {
	case "", ProviderOpenAI:
		return NewOpenAIClient(apiKey, model, opts...), nil
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey, model, opts...), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, apiKey, model, opts...)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q (want openai, anthropic or gemini)", provider)
	}
}
