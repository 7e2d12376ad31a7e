package wsbridge

import (
	"time"

	"conductor/config"
	"conductor/orchestrator"
)

// InstanceInfo describes this instance to the relay on register
type InstanceInfo struct {
	Models   []ModelInfo   `json:"models"`
	Profiles []ProfileInfo `json:"profiles"`
}

type ModelInfo struct {
	Name     string   `json:"name"`
	Provider string   `json:"provider"`
	Models   []string `json:"models"`
}

type ProfileInfo struct {
	Name   string   `json:"name"`
	Model  string   `json:"model,omitempty"`
	Plugin string   `json:"plugin,omitempty"`
	Tools  []string `json:"tools,omitempty"`
}

// AgentInfo is the relay view of an agent record
type AgentInfo struct {
	AgentID        string    `json:"agent_id"`
	ShortID        string    `json:"short_id"`
	ParentID       string    `json:"parent_id"`
	DisplayName    string    `json:"display_name"`
	Purpose        string    `json:"purpose,omitempty"`
	Profile        string    `json:"profile,omitempty"`
	Status         string    `json:"status"`
	Detail         string    `json:"detail,omitempty"`
	LatestProgress string    `json:"latest_progress,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ElapsedMs      int64     `json:"elapsed_ms"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
}

// ConfigToInstanceInfo converts the HCL config into the JSON-safe register
// payload. API keys are never included.
func ConfigToInstanceInfo(cfg *config.Config) InstanceInfo {
	var info InstanceInfo
	if cfg == nil {
		return info
	}

	for _, m := range cfg.Models {
		info.Models = append(info.Models, ModelInfo{
			Name:     m.Name,
			Provider: string(m.Provider),
			Models:   m.AllowedModels,
		})
	}

	for _, p := range cfg.Profiles {
		info.Profiles = append(info.Profiles, ProfileInfo{
			Name:   p.Name,
			Model:  p.Model,
			Plugin: p.Plugin,
			Tools:  p.Tools,
		})
	}

	return info
}

// RecordToAgentInfo flattens a directory record. Elapsed runs to now for
// agents that are still active.
func RecordToAgentInfo(rec orchestrator.AgentRecord, now time.Time) AgentInfo {
	end := rec.TerminalAt
	if end.IsZero() {
		end = now
	}
	return AgentInfo{
		AgentID:        rec.AgentID,
		ShortID:        orchestrator.ShortID(rec.AgentID),
		ParentID:       rec.ParentID,
		DisplayName:    rec.DisplayName,
		Purpose:        rec.Purpose,
		Profile:        rec.Profile,
		Status:         string(rec.Status),
		Detail:         rec.Detail,
		LatestProgress: rec.LatestProgress,
		CreatedAt:      rec.CreatedAt,
		ElapsedMs:      end.Sub(rec.CreatedAt).Milliseconds(),
		InputTokens:    rec.Metrics.InputTokens,
		OutputTokens:   rec.Metrics.OutputTokens,
	}
}
