package streamers

import (
	"context"
	"time"

	"conductor/orchestrator"
	"conductor/store"

	"github.com/hashicorp/go-hclog"
)

// AgentLookup returns the current record of an agent
type AgentLookup func(agentID string) (orchestrator.AgentRecord, error)

// StoringEventHandler is an EventHandler decorator that persists every event
// to the EventStore, then delegates to an inner handler (e.g. CLI or relay).
// When Sessions and Lookup are set, agent records are written on spawn and
// on completion.
type StoringEventHandler struct {
	inner     EventHandler
	events    store.EventStore
	sessionID string
	logger    hclog.Logger

	Sessions store.SessionStore
	Lookup   AgentLookup
}

// NewStoringEventHandler wraps an existing EventHandler with event persistence.
func NewStoringEventHandler(inner EventHandler, events store.EventStore, sessionID string, logger hclog.Logger) *StoringEventHandler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &StoringEventHandler{
		inner:     inner,
		events:    events,
		sessionID: sessionID,
		logger:    logger,
	}
}

const storeTimeout = 5 * time.Second

func (h *StoringEventHandler) HandleEvent(e orchestrator.Event) {
	if e.SessionID == "" {
		e.SessionID = h.sessionID
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	// persistence failures never stop the session
	if err := h.events.StoreEvent(ctx, e); err != nil {
		h.logger.Warn("store event", "kind", e.Kind, "error", err)
	}

	switch e.Kind {
	case orchestrator.EventAgentSpawned, orchestrator.EventAgentCompleted:
		h.storeAgent(ctx, e.Metadata.AgentID)
	}

	if h.inner != nil {
		h.inner.HandleEvent(e)
	}
}

func (h *StoringEventHandler) storeAgent(ctx context.Context, agentID string) {
	if h.Sessions == nil || h.Lookup == nil || agentID == "" {
		return
	}
	rec, err := h.Lookup(agentID)
	if err != nil {
		h.logger.Debug("agent lookup", "agent_id", agentID, "error", err)
		return
	}
	if err := h.Sessions.UpsertAgent(ctx, h.sessionID, rec); err != nil {
		h.logger.Warn("store agent", "agent_id", agentID, "error", err)
	}
}
