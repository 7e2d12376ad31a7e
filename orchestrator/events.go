package orchestrator

import "time"

type EventKind string

const (
	EventAgentSpawned       EventKind = "agent-spawned"
	EventAgentProgress      EventKind = "agent-progress"
	EventAgentCompleted     EventKind = "agent-completed"
	EventEndResultsComposed EventKind = "end-results-composed"
	EventContinuationPosted EventKind = "continuation-posted"
)

const ContentTypeMarkdown = "markdown"

type ContextTokens struct {
	Total int `json:"total"`
	Limit int `json:"limit"`
}

type EventMetadata struct {
	AgentID       string        `json:"agent_id"`
	ContentType   string        `json:"content_type"`
	ContextTokens ContextTokens `json:"context_tokens"`
}

// Event is emitted to rendering and persistence collaborators
type Event struct {
	Kind      EventKind     `json:"kind"`
	SessionID string        `json:"session_id,omitempty"`
	Round     int           `json:"round"`
	Body      string        `json:"body"`
	Metadata  EventMetadata `json:"metadata"`
	At        time.Time     `json:"at"`
}

// EventSink receives runtime events. It is called from several goroutines
// and must not block for long.
type EventSink interface {
	HandleEvent(e Event)
}

type nopSink struct{}

func (nopSink) HandleEvent(Event) {}
