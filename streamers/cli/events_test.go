package cli_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"conductor/orchestrator"
	"conductor/streamers/cli"
)

var _ = Describe("EventHandler", func() {
	var buf *bytes.Buffer

	BeforeEach(func() {
		buf = &bytes.Buffer{}
	})

	It("prints spawn lines without markdown emphasis", func() {
		h := cli.NewEventHandler(buf, false)
		h.HandleEvent(orchestrator.Event{
			Kind:     orchestrator.EventAgentSpawned,
			Body:     "Spawned **Schema review** (`3f2a9c1e`) with profile `reviewer`",
			Metadata: orchestrator.EventMetadata{AgentID: "3f2a9c1e-0000"},
		})
		Expect(buf.String()).To(ContainSubstring("Spawned Schema review (3f2a9c1e) with profile reviewer"))
	})

	It("hides progress unless verbose", func() {
		quiet := cli.NewEventHandler(buf, false)
		quiet.HandleEvent(orchestrator.Event{Kind: orchestrator.EventAgentProgress, Body: "reading files"})
		Expect(buf.String()).To(BeEmpty())

		loud := cli.NewEventHandler(buf, true)
		loud.HandleEvent(orchestrator.Event{Kind: orchestrator.EventAgentProgress, Body: "cloned\nreading files"})
		Expect(buf.String()).To(ContainSubstring("reading files"))
		Expect(buf.String()).NotTo(ContainSubstring("cloned"))
	})

	It("shows context usage on completion", func() {
		h := cli.NewEventHandler(buf, false)
		h.HandleEvent(orchestrator.Event{
			Kind: orchestrator.EventAgentCompleted,
			Metadata: orchestrator.EventMetadata{
				AgentID:       "agent-a",
				ContextTokens: orchestrator.ContextTokens{Total: 12000, Limit: 200000},
			},
		})
		Expect(buf.String()).To(ContainSubstring("(12k/200k tokens)"))
	})

	It("renders composed results", func() {
		h := cli.NewEventHandler(buf, false)
		h.HandleEvent(orchestrator.Event{Kind: orchestrator.EventEndResultsComposed, Body: "## End Results\n\nAll agents finished."})
		Expect(buf.String()).To(ContainSubstring("End Results"))
		Expect(buf.String()).To(ContainSubstring("All agents finished."))
	})
})
