package config

import (
	"fmt"
	"time"
)

// Summarizer kinds
const (
	SummarizerMarkdown = "markdown"
	SummarizerLLM      = "llm"
)

// WatchConfig controls how long the result bridge waits on a child agent
type WatchConfig struct {
	InitialInterval string `hcl:"initial_interval,optional"`
	MaxInterval     string `hcl:"max_interval,optional"`
	Ceiling         string `hcl:"ceiling,optional"`
}

// OrchestratorConfig configures delegation for a session
type OrchestratorConfig struct {
	PrimaryProfile string   `hcl:"primary_profile"`
	AgentProfiles  []string `hcl:"agent_profiles"`

	// SummarizeAt is the fraction of the smallest active context window
	// past which completed agent logs get summarized
	SummarizeAt float64 `hcl:"summarize_at,optional"`

	OutputTokenLimit int    `hcl:"output_token_limit,optional"`
	CancelGrace      string `hcl:"cancel_grace,optional"`
	Summarizer       string `hcl:"summarizer,optional"`

	Watch *WatchConfig `hcl:"watch,block"`
}

// Defaults fills in default values for unset fields
func (o *OrchestratorConfig) Defaults() {
	if o.SummarizeAt == 0 {
		o.SummarizeAt = 0.8
	}
	if o.OutputTokenLimit == 0 {
		o.OutputTokenLimit = 5000
	}
	if o.CancelGrace == "" {
		o.CancelGrace = "10s"
	}
	if o.Summarizer == "" {
		o.Summarizer = SummarizerMarkdown
	}
	if o.Watch == nil {
		o.Watch = &WatchConfig{}
	}
	if o.Watch.InitialInterval == "" {
		o.Watch.InitialInterval = "10s"
	}
	if o.Watch.MaxInterval == "" {
		o.Watch.MaxInterval = "60s"
	}
	if o.Watch.Ceiling == "" {
		o.Watch.Ceiling = "5m"
	}
}

// Validate checks profile references, ranges and durations
func (o *OrchestratorConfig) Validate(profiles []Profile) error {
	known := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		known[p.Name] = true
	}

	if !known[o.PrimaryProfile] {
		return fmt.Errorf("primary_profile: unknown profile '%s'", o.PrimaryProfile)
	}
	if len(o.AgentProfiles) == 0 {
		return fmt.Errorf("agent_profiles: at least one profile is required")
	}
	for _, name := range o.AgentProfiles {
		if !known[name] {
			return fmt.Errorf("agent_profiles: unknown profile '%s'", name)
		}
	}

	if o.SummarizeAt <= 0 || o.SummarizeAt > 1 {
		return fmt.Errorf("summarize_at must be in (0, 1], got %v", o.SummarizeAt)
	}
	if o.OutputTokenLimit < 0 {
		return fmt.Errorf("output_token_limit must be positive")
	}
	switch o.Summarizer {
	case SummarizerMarkdown, SummarizerLLM:
	default:
		return fmt.Errorf("summarizer must be '%s' or '%s', got '%s'", SummarizerMarkdown, SummarizerLLM, o.Summarizer)
	}

	if _, err := o.GetCancelGrace(); err != nil {
		return err
	}
	initial, max, ceiling, err := o.WatchPolicy()
	if err != nil {
		return err
	}
	if initial > max {
		return fmt.Errorf("watch: initial_interval (%s) exceeds max_interval (%s)", initial, max)
	}
	if ceiling < initial {
		return fmt.Errorf("watch: ceiling (%s) is shorter than initial_interval (%s)", ceiling, initial)
	}
	return nil
}

// GetCancelGrace parses cancel_grace
func (o *OrchestratorConfig) GetCancelGrace() (time.Duration, error) {
	return parsePositiveDuration("cancel_grace", o.CancelGrace)
}

// WatchPolicy parses the watch block into initial interval, cap and ceiling
func (o *OrchestratorConfig) WatchPolicy() (initial, max, ceiling time.Duration, err error) {
	w := o.Watch
	if w == nil {
		w = &WatchConfig{InitialInterval: "10s", MaxInterval: "60s", Ceiling: "5m"}
	}
	if initial, err = parsePositiveDuration("watch.initial_interval", w.InitialInterval); err != nil {
		return
	}
	if max, err = parsePositiveDuration("watch.max_interval", w.MaxInterval); err != nil {
		return
	}
	ceiling, err = parsePositiveDuration("watch.ceiling", w.Ceiling)
	return
}

func parsePositiveDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration '%s': %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got '%s'", field, value)
	}
	return d, nil
}
