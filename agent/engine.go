package agent

import (
	"context"
	"fmt"
	"io"
	"sync"

	"conductor/agent/internal/prompts"
	"conductor/aitools"
	"conductor/config"
	"conductor/llm"
	"conductor/orchestrator"

	"github.com/hashicorp/go-hclog"
)

// childKickoff is the first message of a delegated agent; the task itself
// is in the system prompt
const childKickoff = "Start working on the task now."

// PluginEngines resolves the engine behind a plugin profile
type PluginEngines interface {
	Engine(ctx context.Context, path string) (orchestrator.Engine, error)
}

// ProviderFactory builds a provider for a model block
type ProviderFactory func(ctx context.Context, m *config.Model) (llm.Provider, error)

// EngineOptions configures an Engine. Config is required.
type EngineOptions struct {
	Config  *config.Config
	Plugins PluginEngines
	Logger  hclog.Logger

	// NewProvider defaults to llm.NewProvider
	NewProvider ProviderFactory
}

// Engine launches delegated agents as LLM conversations, or hands them to
// an engine plugin when the profile names one. Providers are shared per
// model block.
type Engine struct {
	cfg         *config.Config
	plugins     PluginEngines
	newProvider ProviderFactory
	logger      hclog.Logger

	mu        sync.Mutex
	providers map[string]llm.Provider
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("engine requires a config")
	}
	if opts.NewProvider == nil {
		opts.NewProvider = llm.NewProvider
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &Engine{
		cfg:         opts.Config,
		plugins:     opts.Plugins,
		newProvider: opts.NewProvider,
		logger:      opts.Logger,
		providers:   make(map[string]llm.Provider),
	}, nil
}

// Launch implements orchestrator.Engine
func (e *Engine) Launch(ctx context.Context, req orchestrator.LaunchRequest) (orchestrator.Conversation, error) {
	profile := e.cfg.GetProfile(req.Spec.Profile)
	if profile == nil {
		return nil, fmt.Errorf("profile '%s' not found", req.Spec.Profile)
	}

	if profile.UsesPlugin() {
		if e.plugins == nil {
			return nil, fmt.Errorf("profile '%s' uses a plugin but plugins are not enabled", profile.Name)
		}
		eng, err := e.plugins.Engine(ctx, profile.Plugin)
		if err != nil {
			return nil, fmt.Errorf("profile '%s': %w", profile.Name, err)
		}
		return eng.Launch(ctx, req)
	}

	session, err := e.NewSession(ctx, profile)
	if err != nil {
		return nil, err
	}
	tools, err := BuildTools(profile.Tools)
	if err != nil {
		return nil, fmt.Errorf("profile '%s': %w", profile.Name, err)
	}
	session.SetLogger(e.logger.Named("session").With("agent_id", req.AgentID))

	// the prompt lists report_progress as well; the child adds the bound tool
	promptTools := make(map[string]aitools.Tool, len(tools)+1)
	for name, t := range tools {
		promptTools[name] = t
	}
	progress := &aitools.ChildProgressTool{}
	promptTools[progress.ToolName()] = progress
	session.AddSystemPrompt(prompts.GetChildPrompt(promptTools, req.Spec))
	if profile.Instructions != "" {
		session.AddSystemPrompt(profile.Instructions)
	}

	e.logger.Debug("launching agent", "agent_id", req.AgentID, "profile", profile.Name, "model", profile.Model)
	return startChild(ctx, req, childRun{
		session:       session,
		tools:         tools,
		maxSteps:      profile.GetMaxSteps(),
		contextWindow: profile.EffectiveContextWindow(e.cfg.Models),
		prompt:        childKickoff,
	}, e.logger), nil
}

// NewSession creates an empty session for a model profile, with the stop
// sequence and output limit applied
func (e *Engine) NewSession(ctx context.Context, profile *config.Profile) (*llm.Session, error) {
	model, spec, err := profile.ResolveModel(e.cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("profile '%s': %w", profile.Name, err)
	}
	if model.APIKey == "" {
		return nil, fmt.Errorf("API key not set for model '%s'", model.Name)
	}

	provider, err := e.provider(ctx, model)
	if err != nil {
		return nil, err
	}

	session := llm.NewSession(provider, spec.ID)
	session.SetStopSequences([]string{stopSequence})
	if profile.MaxOutputTokens > 0 {
		session.SetMaxTokens(profile.MaxOutputTokens)
	}
	return session, nil
}

func (e *Engine) provider(ctx context.Context, model *config.Model) (llm.Provider, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.providers[model.Name]; ok {
		return p, nil
	}
	p, err := e.newProvider(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("creating provider for '%s': %w", model.Name, err)
	}
	e.providers[model.Name] = p
	return p, nil
}

// Close releases provider connections
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	for name, p := range e.providers {
		if closer, ok := p.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		delete(e.providers, name)
	}
	return firstErr
}

// BuildTools resolves the builtin tools a profile grants
func BuildTools(names []string) (map[string]aitools.Tool, error) {
	tools := make(map[string]aitools.Tool, len(names))
	for _, name := range names {
		tool, ok := aitools.Builtin(name)
		if !ok {
			return nil, fmt.Errorf("unknown tool '%s' (available: %v)", name, aitools.BuiltinNames())
		}
		tools[name] = tool
	}
	return tools, nil
}
