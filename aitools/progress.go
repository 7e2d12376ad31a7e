package aitools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ChildProgressTool is report_progress as seen by a delegated agent. It is
// bound to the agent, so no id is passed. With is_final the message becomes
// the agent's result.
type ChildProgressTool struct {
	OnProgress func(message string)
	OnFinal    func(markdown string)
}

func (t *ChildProgressTool) ToolName() string {
	return "report_progress"
}

func (t *ChildProgressTool) ToolDescription() string {
	return `Report progress to the agent that delegated your task.

Parameters:
- message: A short status update, or your complete final answer in markdown when is_final is true.
- is_final: Set to true exactly once, with the final result. Include your checklist as a markdown task list ("- [x] item").`
}

func (t *ChildProgressTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"message": {
				Type:        TypeString,
				Description: "Progress note or final markdown result",
			},
			"is_final": {
				Type:        TypeBoolean,
				Description: "Whether message is the final result",
			},
		},
		Required: []string{"message"},
	}
}

func (t *ChildProgressTool) Call(ctx context.Context, params string) string {
	var input struct {
		Message string `json:"message"`
		IsFinal bool   `json:"is_final"`
	}
	if err := json.Unmarshal([]byte(params), &input); err != nil {
		return fmt.Sprintf(`{"status": "error", "message": "invalid input: %v"}`, err)
	}
	if strings.TrimSpace(input.Message) == "" {
		return `{"status": "error", "message": "message is required"}`
	}

	if input.IsFinal {
		if t.OnFinal != nil {
			t.OnFinal(input.Message)
		}
		return `{"status": "ok", "final": true}`
	}
	if t.OnProgress != nil {
		t.OnProgress(input.Message)
	}
	return `{"status": "ok"}`
}
