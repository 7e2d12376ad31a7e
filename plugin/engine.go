package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"conductor/orchestrator"
)

// DefaultPollInterval is how often a running plugin conversation is polled
const DefaultPollInterval = 250 * time.Millisecond

// RemoteEngine runs child conversations inside an engine plugin
type RemoteEngine struct {
	provider     EngineProvider
	pollInterval time.Duration
	logger       hclog.Logger
}

func NewRemoteEngine(provider EngineProvider, logger hclog.Logger) *RemoteEngine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &RemoteEngine{provider: provider, pollInterval: DefaultPollInterval, logger: logger}
}

// WithPollInterval overrides DefaultPollInterval
func (e *RemoteEngine) WithPollInterval(d time.Duration) *RemoteEngine {
	e.pollInterval = d
	return e
}

// Launch implements orchestrator.Engine
func (e *RemoteEngine) Launch(ctx context.Context, req orchestrator.LaunchRequest) (orchestrator.Conversation, error) {
	runID, err := e.provider.Start(StartRequest{
		AgentID:     req.AgentID,
		DisplayName: req.Spec.DisplayName,
		Purpose:     req.Spec.Purpose,
		Prompt:      req.Spec.Prompt,
		Checklist:   req.Spec.Checklist,
		Profile:     req.Spec.Profile,
	})
	if err != nil {
		return nil, fmt.Errorf("plugin start: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := &remoteConversation{
		agentID: req.AgentID,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	e.logger.Debug("plugin run started", "agent_id", req.AgentID, "run_id", runID)
	go c.poll(runCtx, e, runID, req)
	return c, nil
}

type remoteConversation struct {
	agentID string
	cancel  context.CancelFunc
	done    chan struct{}

	mu      sync.Mutex
	outcome orchestrator.Outcome
}

func (c *remoteConversation) Cancel() {
	c.cancel()
}

func (c *remoteConversation) Done() <-chan struct{} {
	return c.done
}

func (c *remoteConversation) Outcome() orchestrator.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

func (c *remoteConversation) finish(out orchestrator.Outcome) {
	c.mu.Lock()
	c.outcome = out
	c.mu.Unlock()
	close(c.done)
}

func (c *remoteConversation) poll(ctx context.Context, e *RemoteEngine, runID string, req orchestrator.LaunchRequest) {
	defer c.cancel()

	start := time.Now()
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := e.provider.Cancel(runID); err != nil {
				e.logger.Warn("plugin cancel failed", "agent_id", c.agentID, "run_id", runID, "error", err)
			}
			c.finish(orchestrator.Outcome{
				AgentID: c.agentID,
				Status:  orchestrator.StatusCancelled,
				Error:   "cancelled",
				Metrics: orchestrator.Metrics{Elapsed: time.Since(start)},
			})
			return
		case <-ticker.C:
		}

		resp, err := e.provider.Poll(runID)
		if err != nil {
			c.finish(orchestrator.Outcome{
				AgentID: c.agentID,
				Status:  orchestrator.StatusFailed,
				Error:   fmt.Sprintf("plugin poll: %v", err),
				Metrics: orchestrator.Metrics{Elapsed: time.Since(start)},
			})
			return
		}

		if req.Progress != nil {
			for _, m := range resp.Progress {
				req.Progress(m)
			}
		}
		if req.Usage != nil && resp.ContextLimit > 0 {
			req.Usage(resp.ContextUsed, resp.ContextLimit)
		}
		if resp.Done {
			c.finish(outcomeFromPoll(c.agentID, resp, time.Since(start)))
			return
		}
	}
}

func outcomeFromPoll(agentID string, resp PollResponse, elapsed time.Duration) orchestrator.Outcome {
	out := orchestrator.Outcome{
		AgentID: agentID,
		Output:  resp.Output,
		Error:   resp.Error,
		Metrics: orchestrator.Metrics{
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			ToolCalls:    resp.ToolCalls,
			Elapsed:      elapsed,
		},
	}
	switch orchestrator.Status(resp.Status) {
	case orchestrator.StatusCompleted:
		out.Status = orchestrator.StatusCompleted
		if out.Output == "" {
			out.Status = orchestrator.StatusFailed
			out.Error = "finished without a result"
		}
	case orchestrator.StatusCancelled:
		out.Status = orchestrator.StatusCancelled
	default:
		out.Status = orchestrator.StatusFailed
		if out.Error == "" {
			out.Error = fmt.Sprintf("plugin reported status %q", resp.Status)
		}
	}
	return out
}
