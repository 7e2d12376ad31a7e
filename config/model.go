package config

import (
	"fmt"
	"sort"
)

type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
)

// ModelSpec describes one model a provider can serve
type ModelSpec struct {
	ID            string // name sent to the provider API
	ContextWindow int    // tokens
}

// SupportedModels maps provider to the models it serves.
// The keys are the names used in HCL references (e.g., models.openai.gpt_4o)
var SupportedModels = map[Provider]map[string]ModelSpec{
	ProviderOpenAI: {
		"gpt_4o":      {ID: "gpt-4o", ContextWindow: 128000},
		"gpt_4o_mini": {ID: "gpt-4o-mini", ContextWindow: 128000},
		"gpt_4_1":     {ID: "gpt-4.1", ContextWindow: 1047576},
		"o3_mini":     {ID: "o3-mini", ContextWindow: 200000},
	},
	ProviderGemini: {
		"gemini_2_0_flash": {ID: "gemini-2.0-flash", ContextWindow: 1048576},
		"gemini_1_5_pro":   {ID: "gemini-1.5-pro", ContextWindow: 2097152},
		"gemini_1_5_flash": {ID: "gemini-1.5-flash", ContextWindow: 1048576},
	},
	ProviderAnthropic: {
		"claude_sonnet_4":  {ID: "claude-sonnet-4-20250514", ContextWindow: 200000},
		"claude_opus_4":    {ID: "claude-opus-4-20250514", ContextWindow: 200000},
		"claude_3_5_haiku": {ID: "claude-3-5-haiku-20241022", ContextWindow: 200000},
	},
}

// Model represents a model provider configuration
type Model struct {
	Name          string   `hcl:"name,label"`
	Provider      Provider `hcl:"provider"`
	AllowedModels []string `hcl:"allowed_models"`
	APIKey        string   `hcl:"api_key"`
}

func (m *Model) Validate() error {
	supportedForProvider, ok := SupportedModels[m.Provider]
	if !ok {
		return fmt.Errorf("unsupported provider '%s'", m.Provider)
	}

	for _, modelName := range m.AllowedModels {
		if _, ok := supportedForProvider[modelName]; !ok {
			return fmt.Errorf("model '%s' is not supported for provider '%s'. Supported models: %v", modelName, m.Provider, modelKeys(supportedForProvider))
		}
	}
	return nil
}

// Allows reports whether the model key is in this model block's allowed list
func (m *Model) Allows(key string) bool {
	for _, allowed := range m.AllowedModels {
		if allowed == key {
			return true
		}
	}
	return false
}

func modelKeys(m map[string]ModelSpec) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
