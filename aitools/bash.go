package aitools

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

const (
	// maxCommandOutput bounds what a single command can put into the context
	maxCommandOutput = 64 * 1024

	DefaultCommandTimeout = 2 * time.Minute
	maxCommandTimeout     = 10 * time.Minute
)

// BashTool runs shell commands for an agent
type BashTool struct {
	// Dir is the working directory, the process directory when empty
	Dir string

	// Timeout applies when the call does not ask for one
	Timeout time.Duration
}

func NewBashTool() *BashTool {
	return &BashTool{Timeout: DefaultCommandTimeout}
}

func (t *BashTool) ToolName() string {
	return "bash"
}

func (t *BashTool) ToolDescription() string {
	return "Runs a bash command and returns its combined stdout and stderr. Non-zero exits are reported with the exit code."
}

func (t *BashTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"command": {
				Type:        TypeString,
				Description: "The bash command to execute",
			},
			"timeout_seconds": {
				Type:        TypeInteger,
				Description: fmt.Sprintf("Optional time limit (default %d, max %d)", int(DefaultCommandTimeout.Seconds()), int(maxCommandTimeout.Seconds())),
			},
		},
		Required: []string{"command"},
	}
}

type bashParams struct {
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func (t *BashTool) timeout(requested int) time.Duration {
	d := t.Timeout
	if requested > 0 {
		d = time.Duration(requested) * time.Second
	}
	if d <= 0 {
		d = DefaultCommandTimeout
	}
	return min(d, maxCommandTimeout)
}

func (t *BashTool) Call(ctx context.Context, params string) string {
	var p bashParams
	if err := t.ToolPayloadSchema().Decode(params, &p); err != nil {
		return "Error: " + err.Error()
	}

	timeout := t.timeout(p.TimeoutSeconds)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", p.Command)
	cmd.Dir = t.Dir
	output, err := cmd.CombinedOutput()
	if len(output) > maxCommandOutput {
		output = append(output[:maxCommandOutput], "\n[output truncated]"...)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return string(output)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("%s\nError: command timed out after %s", output, timeout)
	case errors.As(err, &exitErr) && exitErr.ExitCode() > 0:
		return fmt.Sprintf("%s\nError: exit status %d", output, exitErr.ExitCode())
	default:
		return string(output) + "\nError: " + err.Error()
	}
}
