package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"conductor/aitools"
	"conductor/orchestrator"
	"conductor/streamers"

	"github.com/hashicorp/go-hclog"
)

// childConversation is a delegated agent running its own turn loop
type childConversation struct {
	agentID string
	cancel  context.CancelFunc
	done    chan struct{}
	logger  hclog.Logger

	mu      sync.Mutex
	final   string
	outcome orchestrator.Outcome
}

func (c *childConversation) Cancel() {
	c.cancel()
}

func (c *childConversation) Done() <-chan struct{} {
	return c.done
}

func (c *childConversation) Outcome() orchestrator.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

func (c *childConversation) setFinal(markdown string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.final = markdown
}

func (c *childConversation) hasFinal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.final != ""
}

// progressHandler feeds streamed model text into a progress tracker
type progressHandler struct {
	streamers.NopChatHandler
	tracker *progressTracker
}

func (h progressHandler) PublishReasoningChunk(chunk string) { h.tracker.Write(chunk) }
func (h progressHandler) PublishAnswerChunk(chunk string)    { h.tracker.Write(chunk) }

// childRun is everything a child needs to start its loop
type childRun struct {
	session       llmSession
	tools         map[string]aitools.Tool
	maxSteps      int
	contextWindow int
	prompt        string
}

// startChild launches the loop in its own goroutine and returns at once
func startChild(ctx context.Context, req orchestrator.LaunchRequest, run childRun, logger hclog.Logger) *childConversation {
	runCtx, cancel := context.WithCancel(ctx)
	c := &childConversation{
		agentID: req.AgentID,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  logger,
	}

	report := func(string) {}
	if req.Progress != nil {
		report = req.Progress
	}
	tracker := newProgressTracker(report)

	tools := make(map[string]aitools.Tool, len(run.tools)+1)
	for name, t := range run.tools {
		tools[name] = t
	}
	progress := &aitools.ChildProgressTool{OnProgress: report, OnFinal: c.setFinal}
	tools[progress.ToolName()] = progress

	loop := &turnLoop{
		session:  run.session,
		streamer: progressHandler{tracker: tracker},
		tools:    tools,
		maxSteps: run.maxSteps,
		afterTool: func(string) string {
			if req.Usage != nil {
				req.Usage(run.session.ContextTokens(), run.contextWindow)
			}
			return ""
		},
		finished: c.hasFinal,
	}

	go func() {
		defer close(c.done)
		defer cancel()

		start := time.Now()
		res, err := loop.run(runCtx, run.prompt)
		tracker.Flush()

		c.mu.Lock()
		defer c.mu.Unlock()

		output := c.final
		if output == "" {
			output = res.Answer
		}
		out := orchestrator.Outcome{
			AgentID: c.agentID,
			Status:  orchestrator.StatusCompleted,
			Output:  output,
			Metrics: orchestrator.Metrics{
				InputTokens:  res.Usage.InputTokens,
				OutputTokens: res.Usage.OutputTokens,
				ToolCalls:    res.ToolCalls,
				Elapsed:      time.Since(start),
			},
		}
		switch {
		case runCtx.Err() != nil:
			out.Status = orchestrator.StatusCancelled
			out.Error = "cancelled"
		case errors.Is(err, ErrMaxSteps):
			out.Status = orchestrator.StatusFailed
			out.Error = fmt.Sprintf("%v (%d steps)", err, res.Steps)
		case err != nil:
			out.Status = orchestrator.StatusFailed
			out.Error = err.Error()
		case output == "":
			out.Status = orchestrator.StatusFailed
			out.Error = "finished without a result"
		}
		c.outcome = out
		c.logger.Debug("agent finished", "agent_id", c.agentID, "status", out.Status, "steps", res.Steps, "tool_calls", res.ToolCalls)
	}()

	return c
}
