// plugin_echo is a minimal engine plugin. Every run reports two progress
// notes and completes with the prompt echoed back and the checklist ticked.
package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"conductor/plugin"
)

type run struct {
	req       plugin.StartRequest
	polls     int
	cancelled bool
}

// EchoEngine implements plugin.EngineProvider
type EchoEngine struct {
	mu   sync.Mutex
	runs map[string]*run
}

func (e *EchoEngine) Start(req plugin.StartRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("prompt is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	id := uuid.New().String()
	e.runs[id] = &run{req: req}
	return id, nil
}

func (e *EchoEngine) Poll(runID string) (plugin.PollResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.runs[runID]
	if !ok {
		return plugin.PollResponse{}, fmt.Errorf("unknown run: %s", runID)
	}
	r.polls++

	resp := plugin.PollResponse{ContextUsed: len(r.req.Prompt) / 4, ContextLimit: 8000}
	switch {
	case r.cancelled:
		resp.Done = true
		resp.Status = "cancelled"
		delete(e.runs, runID)
	case r.polls == 1:
		resp.Progress = []string{"reading the task"}
	case r.polls == 2:
		resp.Progress = []string{"writing the answer"}
	default:
		resp.Done = true
		resp.Status = "completed"
		resp.Output = echo(r.req)
		resp.InputTokens = len(r.req.Prompt) / 4
		resp.OutputTokens = len(resp.Output) / 4
		delete(e.runs, runID)
	}
	return resp, nil
}

func (e *EchoEngine) Cancel(runID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r, ok := e.runs[runID]; ok {
		r.cancelled = true
	}
	return nil
}

func echo(req plugin.StartRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n%s\n", req.DisplayName, req.Prompt)
	if len(req.Checklist) > 0 {
		b.WriteString("\n")
		for _, item := range req.Checklist {
			fmt.Fprintf(&b, "- [x] %s\n", item)
		}
	}
	return b.String()
}

func main() {
	plugin.Serve(&EchoEngine{runs: make(map[string]*run)})
}
