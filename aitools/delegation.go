package aitools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"conductor/orchestrator"
)

// Delegator is the part of the orchestrator runtime the delegation tools
// drive. *orchestrator.Runtime satisfies it.
type Delegator interface {
	Spawn(ctx context.Context, parentID string, spec orchestrator.TaskSpec) (orchestrator.SpawnResult, error)
	ReportProgress(agentID, message string) error
	List() []orchestrator.AgentRecord
	ViewLog(agentID string) (orchestrator.LogView, error)
	Cancel(ctx context.Context, agentID string) error
}

// DelegationTools returns the tools of a primary conversation
func DelegationTools(d Delegator, parentID string) []Tool {
	return []Tool{
		&SpawnAgentTool{Delegator: d, ParentID: parentID},
		&ReportProgressTool{Delegator: d},
		&ListAgentsTool{Delegator: d},
		&ViewAgentLogTool{Delegator: d},
		&CancelAgentTool{Delegator: d},
	}
}

func errorJSON(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return errorJSON(err)
	}
	return string(b)
}

// =============================================================================
// spawn_agent
// =============================================================================

// SpawnAgentTool starts a delegated agent and returns without waiting for it
type SpawnAgentTool struct {
	Delegator Delegator
	ParentID  string
}

func (t *SpawnAgentTool) ToolName() string {
	return "spawn_agent"
}

func (t *SpawnAgentTool) ToolDescription() string {
	return `Delegate a task to a new agent that works in the background. Returns immediately with the agent id.

Parameters:
- display_name: A short human-readable name for the agent (required).
- purpose: One line describing why the agent exists.
- prompt: The full task instructions (required). The agent does not see this conversation, so include everything it needs.
- checklist: Up to 50 items the agent must tick off in a markdown task list ("- [x] item") in its final answer.
- profile: The agent profile to use. Unknown profiles fall back to the default agent profile.

Results of all agents spawned in this turn are collected and reported together once every agent has finished. Do not poll for them.`
}

func (t *SpawnAgentTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"display_name": {
				Type:        TypeString,
				Description: "Short human-readable agent name",
			},
			"purpose": {
				Type:        TypeString,
				Description: "Why this agent exists",
			},
			"prompt": {
				Type:        TypeString,
				Description: "Complete task instructions for the agent",
			},
			"checklist": {
				Type:        TypeArray,
				Description: "Items the agent must complete",
				Items:       &Property{Type: TypeString},
				MaxItems:    orchestrator.MaxChecklistItems,
			},
			"profile": {
				Type:        TypeString,
				Description: "Agent profile name",
			},
		},
		Required: []string{"display_name", "prompt"},
	}
}

func (t *SpawnAgentTool) Call(ctx context.Context, params string) string {
	var spec orchestrator.TaskSpec
	if err := json.Unmarshal([]byte(params), &spec); err != nil {
		return errorJSON(fmt.Errorf("invalid input: %w", err))
	}

	res, err := t.Delegator.Spawn(ctx, t.ParentID, spec)
	if err != nil {
		return errorJSON(err)
	}
	return toJSON(res)
}

// =============================================================================
// report_progress
// =============================================================================

// ReportProgressTool records a progress note against a named agent
type ReportProgressTool struct {
	Delegator Delegator
}

func (t *ReportProgressTool) ToolName() string {
	return "report_progress"
}

func (t *ReportProgressTool) ToolDescription() string {
	return "Attach a short progress note to a running agent. The note shows up in list_agents and in the event stream."
}

func (t *ReportProgressTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"agent_id": {
				Type:        TypeString,
				Description: "The agent the note is about",
			},
			"message": {
				Type:        TypeString,
				Description: "The progress note",
			},
		},
		Required: []string{"agent_id", "message"},
	}
}

func (t *ReportProgressTool) Call(ctx context.Context, params string) string {
	var input struct {
		AgentID string `json:"agent_id"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(params), &input); err != nil {
		return errorJSON(fmt.Errorf("invalid input: %w", err))
	}
	if strings.TrimSpace(input.Message) == "" {
		return errorJSON(errors.New("message is required"))
	}
	if err := t.Delegator.ReportProgress(input.AgentID, input.Message); err != nil {
		return errorJSON(err)
	}
	return `{"status": "ok"}`
}

// =============================================================================
// list_agents
// =============================================================================

// ListAgentsTool lists the delegated agents of the session
type ListAgentsTool struct {
	Delegator Delegator
}

func (t *ListAgentsTool) ToolName() string {
	return "list_agents"
}

func (t *ListAgentsTool) ToolDescription() string {
	return "List all delegated agents with their status, round and latest progress."
}

func (t *ListAgentsTool) ToolPayloadSchema() Schema {
	return Schema{Type: TypeObject, Properties: PropertyMap{}}
}

type agentSummary struct {
	AgentID        string              `json:"agent_id"`
	DisplayName    string              `json:"display_name"`
	Profile        string              `json:"profile,omitempty"`
	Status         orchestrator.Status `json:"status"`
	Round          int                 `json:"round"`
	LatestProgress string              `json:"latest_progress,omitempty"`
}

func (t *ListAgentsTool) Call(ctx context.Context, params string) string {
	records := t.Delegator.List()
	out := make([]agentSummary, 0, len(records))
	for _, r := range records {
		out = append(out, agentSummary{
			AgentID:        r.AgentID,
			DisplayName:    r.DisplayName,
			Profile:        r.Profile,
			Status:         r.Status,
			Round:          r.Round,
			LatestProgress: r.LatestProgress,
		})
	}
	return toJSON(map[string]any{"agents": out})
}

// =============================================================================
// view_agent_log
// =============================================================================

// ViewAgentLogTool returns an agent's log, or its summary once condensed
type ViewAgentLogTool struct {
	Delegator Delegator
}

func (t *ViewAgentLogTool) ToolName() string {
	return "view_agent_log"
}

func (t *ViewAgentLogTool) ToolDescription() string {
	return "Show the output log of an agent. Long logs may have been replaced by a summary."
}

func (t *ViewAgentLogTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"agent_id": {
				Type:        TypeString,
				Description: "The agent whose log to show",
			},
		},
		Required: []string{"agent_id"},
	}
}

func (t *ViewAgentLogTool) Call(ctx context.Context, params string) string {
	var input struct {
		AgentID string `json:"agent_id"`
	}
	if err := json.Unmarshal([]byte(params), &input); err != nil {
		return errorJSON(fmt.Errorf("invalid input: %w", err))
	}
	view, err := t.Delegator.ViewLog(input.AgentID)
	if err != nil {
		return errorJSON(err)
	}
	if view.Body == "" {
		return "(no output yet)"
	}
	if view.Summarized {
		return "[summarized]\n\n" + view.Body
	}
	return view.Body
}

// =============================================================================
// cancel_agent
// =============================================================================

// CancelAgentTool stops a running agent
type CancelAgentTool struct {
	Delegator Delegator
}

func (t *CancelAgentTool) ToolName() string {
	return "cancel_agent"
}

func (t *CancelAgentTool) ToolDescription() string {
	return "Cancel a running agent. The agent gets a grace period to stop, after which it is stopped forcibly and its output is discarded."
}

func (t *CancelAgentTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"agent_id": {
				Type:        TypeString,
				Description: "The agent to cancel",
			},
		},
		Required: []string{"agent_id"},
	}
}

func (t *CancelAgentTool) Call(ctx context.Context, params string) string {
	var input struct {
		AgentID string `json:"agent_id"`
	}
	if err := json.Unmarshal([]byte(params), &input); err != nil {
		return errorJSON(fmt.Errorf("invalid input: %w", err))
	}

	err := t.Delegator.Cancel(ctx, input.AgentID)
	var timeout *orchestrator.CancellationTimeout
	switch {
	case errors.As(err, &timeout):
		return toJSON(map[string]any{"agent_id": input.AgentID, "status": orchestrator.StatusCancelled, "forced": true})
	case err != nil:
		return errorJSON(err)
	}
	return toJSON(map[string]any{"agent_id": input.AgentID, "status": orchestrator.StatusCancelled})
}
