package orchestrator

import (
	"strings"
	"time"
)

// MainParticipant is the participant id of the primary conversation
const MainParticipant = "main"

// MaxChecklistItems bounds the checklist of a single task
const MaxChecklistItems = 50

// Status is the lifecycle status of a delegated agent
type Status string

const (
	StatusSpawned   Status = "spawned"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status can no longer change
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	}
	return false
}

func (s Status) rank() int {
	switch s {
	case StatusSpawned:
		return 0
	case StatusRunning:
		return 1
	default:
		return 2
	}
}

// TaskSpec is the input to a spawn request. It is not modified after spawn.
type TaskSpec struct {
	DisplayName string   `json:"display_name"`
	Purpose     string   `json:"purpose,omitempty"`
	Prompt      string   `json:"prompt"`
	Checklist   []string `json:"checklist,omitempty"`
	Profile     string   `json:"profile,omitempty"`
}

// Validate checks the required fields and the checklist shape
func (s TaskSpec) Validate() error {
	if strings.TrimSpace(s.DisplayName) == "" {
		return &ValidationError{Field: "display_name", Reason: "is required"}
	}
	if strings.TrimSpace(s.Prompt) == "" {
		return &ValidationError{Field: "prompt", Reason: "is required"}
	}
	if len(s.Checklist) > MaxChecklistItems {
		return &ValidationError{Field: "checklist", Reason: "has more than 50 items"}
	}
	for _, item := range s.Checklist {
		if strings.TrimSpace(item) == "" {
			return &ValidationError{Field: "checklist", Reason: "items must not be blank"}
		}
	}
	return nil
}

// Metrics are the usage figures reported for one agent
type Metrics struct {
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	ToolCalls    int           `json:"tool_calls"`
	Elapsed      time.Duration `json:"elapsed"`
}

// AgentRecord is a point-in-time copy of a directory entry
type AgentRecord struct {
	AgentID        string    `json:"agent_id"`
	ParentID       string    `json:"parent_id"`
	DisplayName    string    `json:"display_name"`
	Purpose        string    `json:"purpose,omitempty"`
	Profile        string    `json:"profile,omitempty"`
	Checklist      []string  `json:"checklist,omitempty"`
	Status         Status    `json:"status"`
	Detail         string    `json:"detail,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	TerminalAt     time.Time `json:"terminal_at,omitempty"`
	LatestProgress string    `json:"latest_progress,omitempty"`
	Metrics        Metrics   `json:"metrics"`

	// Round is the delegation round the agent's result belongs to
	Round int `json:"round"`

	// LogSize is the length in bytes of the current log (raw or summary)
	LogSize    int  `json:"log_size"`
	Summarized bool `json:"summarized"`
}

func (r AgentRecord) clone() AgentRecord {
	out := r
	if r.Checklist != nil {
		out.Checklist = append([]string(nil), r.Checklist...)
	}
	return out
}

// ShortID is the first eight characters of an agent id
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Outcome is the terminal signal of a child conversation
type Outcome struct {
	AgentID string  `json:"agent_id"`
	Status  Status  `json:"status"`
	Output  string  `json:"output,omitempty"`
	Error   string  `json:"error,omitempty"`
	Metrics Metrics `json:"metrics"`
}

// ProgressEntry is one element of an agent's append-only progress log
type ProgressEntry struct {
	Seq     int       `json:"seq"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// SpawnResult is returned to the delegating conversation
type SpawnResult struct {
	AgentID string `json:"agent_id"`
	Status  Status `json:"status"`
}
