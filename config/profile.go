package config

import (
	"fmt"
	"strings"
)

// DefaultContextWindow is used for plugin profiles and models without a known window
const DefaultContextWindow = 128000

// Profile is a named configuration bundle (model, prompt defaults) selectable
// for the primary conversation or for a delegated agent.
type Profile struct {
	Name string `hcl:"name,label"`

	// Model is the model key (e.g., models.anthropic.claude_sonnet_4).
	// Mutually exclusive with Plugin.
	Model string `hcl:"model,optional"`

	// Plugin is the path to an engine plugin binary that drives the
	// conversation instead of a model.
	Plugin string `hcl:"plugin,optional"`

	Instructions    string `hcl:"instructions,optional"`
	ContextWindow   int    `hcl:"context_window,optional"`
	MaxOutputTokens int    `hcl:"max_output_tokens,optional"`

	// MaxSteps bounds the tool-call iterations of a child conversation
	MaxSteps int `hcl:"max_steps,optional"`

	// Tools names the builtin tools granted to agents of this profile
	Tools []string `hcl:"tools,optional"`
}

// Validate checks that the profile is usable against the configured models
func (p *Profile) Validate(models []Model) error {
	if p.Model == "" && p.Plugin == "" {
		return fmt.Errorf("one of model or plugin is required")
	}
	if p.Model != "" && p.Plugin != "" {
		return fmt.Errorf("model and plugin are mutually exclusive")
	}
	if p.ContextWindow < 0 {
		return fmt.Errorf("context_window must be positive")
	}
	if p.MaxOutputTokens < 0 {
		return fmt.Errorf("max_output_tokens must be positive")
	}
	if p.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be positive")
	}
	if p.Model != "" {
		if _, _, err := p.ResolveModel(models); err != nil {
			return err
		}
	}
	return nil
}

// UsesPlugin reports whether the profile is driven by an engine plugin
func (p *Profile) UsesPlugin() bool {
	return strings.TrimSpace(p.Plugin) != ""
}

// ResolveModel finds the Model config that matches this profile's model key
// and returns it with the provider-side model spec.
func (p *Profile) ResolveModel(models []Model) (*Model, ModelSpec, error) {
	for i := range models {
		m := &models[i]
		supported, ok := SupportedModels[m.Provider]
		if !ok || !m.Allows(p.Model) {
			continue
		}
		spec, ok := supported[p.Model]
		if !ok {
			return nil, ModelSpec{}, fmt.Errorf("model key '%s' not found in supported models for provider '%s'", p.Model, m.Provider)
		}
		return m, spec, nil
	}

	return nil, ModelSpec{}, fmt.Errorf("no model config found for model '%s'", p.Model)
}

// EffectiveContextWindow returns the configured window, falling back to the
// model's known window and then DefaultContextWindow.
func (p *Profile) EffectiveContextWindow(models []Model) int {
	if p.ContextWindow > 0 {
		return p.ContextWindow
	}
	if p.Model != "" {
		if _, spec, err := p.ResolveModel(models); err == nil && spec.ContextWindow > 0 {
			return spec.ContextWindow
		}
	}
	return DefaultContextWindow
}

// GetMaxSteps returns the step bound for child conversations (default 12)
func (p *Profile) GetMaxSteps() int {
	if p.MaxSteps <= 0 {
		return 12
	}
	return p.MaxSteps
}
