package llm

import (
	"context"
	"fmt"

	"conductor/config"
)

// NewProvider builds the provider client for a model block. Providers that
// hold connections (gemini) implement io.Closer.
func NewProvider(ctx context.Context, m *config.Model) (Provider, error) {
	switch m.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIProvider(m.APIKey), nil
	case config.ProviderAnthropic:
		return NewAnthropicProvider(m.APIKey), nil
	case config.ProviderGemini:
		p, err := NewGeminiProvider(ctx, m.APIKey)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported provider '%s'", m.Provider)
	}
}
