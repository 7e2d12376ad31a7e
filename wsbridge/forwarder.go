package wsbridge

import (
	"github.com/hashicorp/go-hclog"

	"conductor/orchestrator"
)

// EventForwarder implements streamers.EventHandler by sending orchestrator
// events to the relay. Events raised while disconnected are dropped.
type EventForwarder struct {
	client *Client
	logger hclog.Logger
}

func NewEventForwarder(client *Client) *EventForwarder {
	return &EventForwarder{client: client, logger: client.logger}
}

func (f *EventForwarder) HandleEvent(e orchestrator.Event) {
	env, err := NewEvent(TypeEvent, &e)
	if err != nil {
		f.logger.Error("marshal event", "kind", e.Kind, "error", err)
		return
	}
	if err := f.client.SendEvent(env); err != nil {
		f.logger.Debug("event not forwarded", "kind", e.Kind, "agent_id", e.Metadata.AgentID, "error", err)
	}
}
