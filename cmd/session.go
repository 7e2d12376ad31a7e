package cmd

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"conductor/agent"
	"conductor/config"
	"conductor/orchestrator"
	"conductor/plugin"
	"conductor/store"
	"conductor/streamers"
	"conductor/streamers/cli"
	"conductor/wsbridge"
)

// continuationPrompt starts the turn that follows a composed round
const continuationPrompt = "The delegated agents of the last round have finished. Continue from the continuation above."

// session is one orchestrated conversation with everything wired to it
type session struct {
	id      string
	cfg     *config.Config
	profile *config.Profile
	model   string
	logger  hclog.Logger

	stores  *store.Bundle
	plugins *plugin.Manager
	engine  *agent.Engine
	rt      *orchestrator.Runtime
	primary *agent.Primary
	chat    *cli.ChatHandler
	relay   *wsbridge.Client
}

type sessionOptions struct {
	verbose bool
}

func newSession(ctx context.Context, cfg *config.Config, logger hclog.Logger, opts sessionOptions) (s *session, err error) {
	o := cfg.Orchestrator
	if o == nil {
		return nil, fmt.Errorf("no orchestrator block in config; add one with primary_profile and agent_profiles")
	}
	profile := cfg.GetProfile(o.PrimaryProfile)
	if profile.UsesPlugin() {
		return nil, fmt.Errorf("primary profile '%s' must use a model, not a plugin", profile.Name)
	}
	_, spec, err := profile.ResolveModel(cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("primary profile '%s': %w", profile.Name, err)
	}

	s = &session{cfg: cfg, profile: profile, model: spec.ID, logger: logger}
	defer func() {
		if err != nil {
			s.Close(err)
		}
	}()

	if s.stores, err = store.NewBundle(ctx, cfg.Storage); err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if s.id, err = s.stores.Sessions.CreateSession(ctx, profile.Name, spec.ID); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.plugins = plugin.NewManager(logger)
	s.engine, err = agent.NewEngine(agent.EngineOptions{
		Config:  cfg,
		Plugins: s.plugins,
		Logger:  logger.Named("agent.engine"),
	})
	if err != nil {
		return nil, err
	}

	term := cli.NewTerminal(nil, nil)
	s.chat = cli.NewChatHandler(term)

	var handlers streamers.MultiEventHandler
	handlers = append(handlers, cli.NewEventHandler(term, opts.verbose))
	if cfg.Relay != nil {
		s.relay = wsbridge.NewClient(wsbridge.Options{
			Relay:     cfg.Relay,
			Config:    cfg,
			SessionID: s.id,
			Version:   Version,
			Logger:    logger,
		})
		handlers = append(handlers, wsbridge.NewEventForwarder(s.relay))
	}
	storing := streamers.NewStoringEventHandler(handlers, s.stores.Events, s.id, logger.Named("store"))
	storing.Sessions = s.stores.Sessions

	rtOpts, err := s.runtimeOptions(ctx)
	if err != nil {
		return nil, err
	}
	rtOpts.Sink = storing
	if s.rt, err = orchestrator.NewRuntime(rtOpts); err != nil {
		return nil, err
	}
	storing.Lookup = s.rt.Snapshot
	if s.relay != nil {
		s.relay.SetController(s.rt)
	}

	llmSession, err := s.engine.NewSession(ctx, profile)
	if err != nil {
		return nil, err
	}
	llmSession.SetLogger(logger.Named("session").With("session_id", s.id))

	s.primary = agent.NewPrimary(agent.PrimaryOptions{
		Session:       llmSession,
		Runtime:       s.rt,
		Streamer:      s.chat,
		Profiles:      o.AgentProfiles,
		ContextWindow: profile.EffectiveContextWindow(cfg.Models),
		Instructions:  profile.Instructions,
		Logger:        logger.Named("primary"),
	})
	return s, nil
}

func (s *session) runtimeOptions(ctx context.Context) (orchestrator.Options, error) {
	o := s.cfg.Orchestrator
	grace, err := o.GetCancelGrace()
	if err != nil {
		return orchestrator.Options{}, err
	}
	initial, max, ceiling, err := o.WatchPolicy()
	if err != nil {
		return orchestrator.Options{}, err
	}

	var profiles []orchestrator.ProfileInfo
	for _, name := range o.AgentProfiles {
		p := s.cfg.GetProfile(name)
		profiles = append(profiles, orchestrator.ProfileInfo{
			Name:          p.Name,
			ContextWindow: p.EffectiveContextWindow(s.cfg.Models),
		})
	}

	var summarizer orchestrator.Summarizer = orchestrator.MarkdownCondenser{MaxListItems: 20}
	if o.Summarizer == config.SummarizerLLM {
		llmSummarizer, err := s.engine.NewSummarizer(ctx, s.profile)
		if err != nil {
			return orchestrator.Options{}, fmt.Errorf("summarizer: %w", err)
		}
		summarizer = llmSummarizer
	}

	return orchestrator.Options{
		Engine:               s.engine,
		Profiles:             profiles,
		PrimaryContextWindow: s.profile.EffectiveContextWindow(s.cfg.Models),
		Backoff:              orchestrator.BackoffPolicy{Initial: initial, Max: max, Ceiling: ceiling},
		CancelGrace:          grace,
		OutputTokenLimit:     o.OutputTokenLimit,
		SummarizeAt:          o.SummarizeAt,
		Summarizer:           summarizer,
		Archive:              s.stores.Archive,
		Summaries:            s.stores.Summaries,
		Runs:                 s.stores.Runs,
		SessionID:            s.id,
		Logger:               s.logger.Named("orchestrator"),
	}, nil
}

// turn runs one primary turn and records both sides of it
func (s *session) turn(ctx context.Context, input string) {
	s.record(ctx, "user", input)
	answer, err := s.primary.Turn(ctx, input)
	s.finish(ctx, answer, err)
}

func (s *session) finish(ctx context.Context, answer string, err error) {
	if err != nil {
		if ctx.Err() == nil {
			s.chat.Error(err)
		}
		s.logger.Error("turn failed", "error", err)
		return
	}
	s.record(ctx, "assistant", answer)
}

// continueRound hands composed rounds to the primary and runs a turn on them
func (s *session) continueRound(ctx context.Context) {
	conts := s.rt.TakeContinuations()
	if len(conts) == 0 {
		return
	}
	for _, c := range conts {
		s.primary.AddContinuation(c)
		s.record(ctx, "continuation", c.Markdown)
	}
	answer, err := s.primary.Continue(ctx, continuationPrompt)
	s.finish(ctx, answer, err)
}

func (s *session) record(ctx context.Context, role, content string) {
	if err := s.stores.Sessions.AppendMessage(ctx, s.id, role, content); err != nil {
		s.logger.Warn("store message", "role", role, "error", err)
	}
}

// Close stops the runtime and plugins and marks the session finished
func (s *session) Close(sessionErr error) {
	if s.rt != nil {
		s.rt.Close()
	}
	if s.relay != nil {
		s.relay.Close()
	}
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			s.logger.Warn("closing providers", "error", err)
		}
	}
	if s.plugins != nil {
		s.plugins.Close()
	}
	if s.stores != nil {
		if s.id != "" {
			if err := s.stores.Sessions.CompleteSession(context.Background(), s.id, sessionErr); err != nil {
				s.logger.Warn("complete session", "error", err)
			}
		}
		s.stores.Close()
	}
}
