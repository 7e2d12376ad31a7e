package orchestrator

import "context"

// Control is the cancellation capability of a running child
type Control interface {
	// Cancel asks the child to stop. It must not block.
	Cancel()
	// Done is closed once the child has stopped for any reason
	Done() <-chan struct{}
}

// Conversation is a launched child conversation
type Conversation interface {
	Control
	// Outcome is valid once Done is closed
	Outcome() Outcome
}

// LaunchRequest carries everything an engine needs to start a child
type LaunchRequest struct {
	AgentID string
	Spec    TaskSpec

	// Progress receives short status text while the child runs
	Progress func(message string)

	// Usage receives context usage after every tool-call boundary
	Usage func(used, limit int)
}

// Engine starts child conversations. Launch must return without waiting
// for the conversation to finish.
type Engine interface {
	Launch(ctx context.Context, req LaunchRequest) (Conversation, error)
}
