package agent

import (
	"context"
	"fmt"
	"strings"

	"conductor/agent/internal/prompts"
	"conductor/aitools"
	"conductor/llm"
	"conductor/orchestrator"
	"conductor/streamers"

	"github.com/hashicorp/go-hclog"
)

// Coordinator is the part of the orchestrator runtime a primary
// conversation drives. *orchestrator.Runtime satisfies it.
type Coordinator interface {
	aitools.Delegator
	BeginTurn(userMessage string)
	BeginContinuationTurn()
	EndTurn()
	TakeInjected() []orchestrator.Delivery
	RecordUsage(participant string, used, limit int)
}

// PrimaryOptions configures a Primary. Session, Runtime and Streamer are required.
type PrimaryOptions struct {
	Session  *llm.Session
	Runtime  Coordinator
	Streamer streamers.ChatHandler

	// Profiles are the agent profile names offered to the model
	Profiles      []string
	ContextWindow int
	Instructions  string
	Logger        hclog.Logger
}

// Primary is the user-facing conversation. It delegates through the
// runtime and receives results between tool calls of its turns.
type Primary struct {
	session       *llm.Session
	rt            Coordinator
	streamer      streamers.ChatHandler
	tools         map[string]aitools.Tool
	contextWindow int
	logger        hclog.Logger

	// continuations wait here until the next turn
	continuations []orchestrator.Continuation
}

func NewPrimary(opts PrimaryOptions) *Primary {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}

	tools := make(map[string]aitools.Tool)
	for _, t := range aitools.DelegationTools(opts.Runtime, orchestrator.MainParticipant) {
		tools[t.ToolName()] = t
	}

	opts.Session.SetStopSequences([]string{stopSequence})
	opts.Session.AddSystemPrompt(prompts.GetPrimaryPrompt(tools, opts.Profiles))
	if opts.Instructions != "" {
		opts.Session.AddSystemPrompt(opts.Instructions)
	}

	return &Primary{
		session:       opts.Session,
		rt:            opts.Runtime,
		streamer:      opts.Streamer,
		tools:         tools,
		contextWindow: opts.ContextWindow,
		logger:        opts.Logger,
	}
}

// Turn runs one user turn to its answer
func (p *Primary) Turn(ctx context.Context, input string) (string, error) {
	p.rt.BeginTurn(input)
	return p.run(ctx, input)
}

// Continue runs a turn on the queued continuations. prompt is not a user
// message, so the runtime keeps the last one for open questions.
func (p *Primary) Continue(ctx context.Context, prompt string) (string, error) {
	p.rt.BeginContinuationTurn()
	return p.run(ctx, prompt)
}

func (p *Primary) run(ctx context.Context, input string) (string, error) {
	defer p.rt.EndTurn()

	var msg strings.Builder
	for _, c := range p.continuations {
		fmt.Fprintf(&msg, "<CONTINUATION round=\"%d\">\n%s\n</CONTINUATION>\n\n", c.Round, c.Markdown)
	}
	p.continuations = nil
	if injected := formatDeliveries(p.rt.TakeInjected()); injected != "" {
		msg.WriteString(injected)
		msg.WriteString("\n\n")
	}
	msg.WriteString(input)

	loop := &turnLoop{
		session:  p.session,
		streamer: p.streamer,
		tools:    p.tools,
		afterTool: func(toolName string) string {
			p.reportUsage()
			return formatDeliveries(p.rt.TakeInjected())
		},
	}

	res, err := loop.run(ctx, msg.String())
	p.reportUsage()
	if err != nil {
		return "", err
	}
	p.logger.Debug("turn finished", "steps", res.Steps, "tool_calls", res.ToolCalls)
	return res.Answer, nil
}

// AddContinuation queues a continuation for the next turn
func (p *Primary) AddContinuation(c orchestrator.Continuation) {
	p.continuations = append(p.continuations, c)
}

func (p *Primary) reportUsage() {
	if p.contextWindow > 0 {
		p.rt.RecordUsage(orchestrator.MainParticipant, p.session.ContextTokens(), p.contextWindow)
	}
}

// formatDeliveries renders results that arrived during a turn
func formatDeliveries(ds []orchestrator.Delivery) string {
	if len(ds) == 0 {
		return ""
	}
	var b strings.Builder
	for i, d := range ds {
		if i > 0 {
			b.WriteByte('\n')
		}
		deferred := ""
		if d.Deferred {
			deferred = ` deferred="true"`
		}
		fmt.Fprintf(&b, "<AGENT_RESULT agent_id=\"%s\"%s>\n%s\n</AGENT_RESULT>", d.AgentID, deferred, strings.TrimSpace(d.Markdown))
	}
	return b.String()
}
