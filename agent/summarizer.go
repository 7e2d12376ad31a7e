package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"conductor/config"
	"conductor/llm"
)

const summarizerPrompt = `You condense the output log of a delegated agent so it takes less context.

Rules:
- Keep every finding, decision, file path, command and number that a reader would need to act on the result.
- Keep markdown task lists exactly as written, including their [x] / [ ] state.
- Drop repetition, exploratory dead ends and tool noise.
- Answer with the condensed markdown only, no preamble.`

// LLMSummarizer condenses agent logs with a model call
type LLMSummarizer struct {
	provider  llm.Provider
	model     string
	maxTokens int
}

func NewLLMSummarizer(provider llm.Provider, model string, maxTokens int) *LLMSummarizer {
	return &LLMSummarizer{provider: provider, model: model, maxTokens: maxTokens}
}

// Summarize implements orchestrator.Summarizer. Each call uses a fresh session.
func (s *LLMSummarizer) Summarize(ctx context.Context, agentID, transcript string) (string, error) {
	session := llm.NewSession(s.provider, s.model, summarizerPrompt)
	if s.maxTokens > 0 {
		session.SetMaxTokens(s.maxTokens)
	}

	resp, err := session.Send(ctx, fmt.Sprintf("<AGENT_LOG agent_id=\"%s\">\n%s\n</AGENT_LOG>", agentID, transcript))
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", errors.New("model returned an empty summary")
	}
	return out, nil
}

// NewSummarizer builds an LLM summarizer on a model profile's provider
func (e *Engine) NewSummarizer(ctx context.Context, profile *config.Profile) (*LLMSummarizer, error) {
	if profile.UsesPlugin() {
		return nil, fmt.Errorf("profile '%s' is a plugin profile and cannot summarize", profile.Name)
	}
	model, spec, err := profile.ResolveModel(e.cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("profile '%s': %w", profile.Name, err)
	}
	provider, err := e.provider(ctx, model)
	if err != nil {
		return nil, err
	}
	return NewLLMSummarizer(provider, spec.ID, profile.MaxOutputTokens), nil
}
