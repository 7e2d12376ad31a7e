package streamers_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"conductor/orchestrator"
	"conductor/store"
	"conductor/streamers"
)

type collectingHandler struct {
	mu     sync.Mutex
	events []orchestrator.Event
}

func (c *collectingHandler) HandleEvent(e orchestrator.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

var _ = Describe("StoringEventHandler", func() {
	var (
		ctx       context.Context
		bundle    *store.Bundle
		sessionID string
		inner     *collectingHandler
	)

	BeforeEach(func() {
		ctx = context.Background()
		bundle = store.NewMemoryBundle()
		var err error
		sessionID, err = bundle.Sessions.CreateSession(ctx, "primary", "")
		Expect(err).NotTo(HaveOccurred())
		inner = &collectingHandler{}
	})

	It("persists events under the session and delegates", func() {
		h := streamers.NewStoringEventHandler(inner, bundle.Events, sessionID, nil)

		h.HandleEvent(orchestrator.Event{Kind: orchestrator.EventAgentProgress, Body: "halfway", At: time.Now()})

		stored, err := bundle.Events.ListEvents(ctx, sessionID, 0, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(HaveLen(1))
		Expect(stored[0].SessionID).To(Equal(sessionID))
		Expect(stored[0].Body).To(Equal("halfway"))

		Expect(inner.events).To(HaveLen(1))
		Expect(inner.events[0].SessionID).To(Equal(sessionID))
	})

	It("writes agent records on spawn and completion", func() {
		status := orchestrator.StatusRunning
		h := streamers.NewStoringEventHandler(inner, bundle.Events, sessionID, nil)
		h.Sessions = bundle.Sessions
		h.Lookup = func(id string) (orchestrator.AgentRecord, error) {
			return orchestrator.AgentRecord{AgentID: id, DisplayName: "A", Status: status}, nil
		}

		meta := orchestrator.EventMetadata{AgentID: "agent-a"}
		h.HandleEvent(orchestrator.Event{Kind: orchestrator.EventAgentSpawned, Metadata: meta, At: time.Now()})
		status = orchestrator.StatusCompleted
		h.HandleEvent(orchestrator.Event{Kind: orchestrator.EventAgentCompleted, Metadata: meta, At: time.Now()})

		agents, err := bundle.Sessions.ListAgents(ctx, sessionID)
		Expect(err).NotTo(HaveOccurred())
		Expect(agents).To(HaveLen(1))
		Expect(agents[0].Status).To(Equal(orchestrator.StatusCompleted))
	})

	It("ignores lookups for progress events", func() {
		called := false
		h := streamers.NewStoringEventHandler(nil, bundle.Events, sessionID, nil)
		h.Sessions = bundle.Sessions
		h.Lookup = func(id string) (orchestrator.AgentRecord, error) {
			called = true
			return orchestrator.AgentRecord{}, nil
		}

		h.HandleEvent(orchestrator.Event{Kind: orchestrator.EventAgentProgress, Metadata: orchestrator.EventMetadata{AgentID: "agent-a"}})
		Expect(called).To(BeFalse())
	})
})

var _ = Describe("MultiEventHandler", func() {
	It("fans out in order and skips nil handlers", func() {
		a, b := &collectingHandler{}, &collectingHandler{}
		multi := streamers.MultiEventHandler{a, nil, b}

		multi.HandleEvent(orchestrator.Event{Kind: orchestrator.EventAgentSpawned})

		Expect(a.events).To(HaveLen(1))
		Expect(b.events).To(HaveLen(1))
	})
})
