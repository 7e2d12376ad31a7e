package agent_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"conductor/agent"
	"conductor/llm"
	"conductor/orchestrator"
	"conductor/streamers"
)

type fakeCoordinator struct {
	began     []string
	continued int
	ended     int
	spawned   []orchestrator.TaskSpec
	parents   []string
	pending   []orchestrator.Delivery
	usageFor  []string
}

func (f *fakeCoordinator) Spawn(ctx context.Context, parentID string, spec orchestrator.TaskSpec) (orchestrator.SpawnResult, error) {
	f.spawned = append(f.spawned, spec)
	f.parents = append(f.parents, parentID)
	id := "a-1"
	// the child finishes while the primary is still in its turn
	f.pending = append(f.pending, orchestrator.Delivery{AgentID: id, Markdown: "- [x] schema\n"})
	return orchestrator.SpawnResult{AgentID: id, Status: orchestrator.StatusRunning}, nil
}

func (f *fakeCoordinator) ReportProgress(agentID, message string) error { return nil }
func (f *fakeCoordinator) List() []orchestrator.AgentRecord              { return nil }

func (f *fakeCoordinator) ViewLog(agentID string) (orchestrator.LogView, error) {
	return orchestrator.LogView{}, errors.New("unknown agent")
}

func (f *fakeCoordinator) Cancel(ctx context.Context, agentID string) error { return nil }

func (f *fakeCoordinator) BeginTurn(userMessage string) { f.began = append(f.began, userMessage) }
func (f *fakeCoordinator) BeginContinuationTurn()       { f.continued++ }
func (f *fakeCoordinator) EndTurn()                     { f.ended++ }

func (f *fakeCoordinator) TakeInjected() []orchestrator.Delivery {
	out := f.pending
	f.pending = nil
	return out
}

func (f *fakeCoordinator) RecordUsage(participant string, used, limit int) {
	f.usageFor = append(f.usageFor, participant)
}

var _ = Describe("Primary", func() {
	var (
		provider *scriptedProvider
		rt       *fakeCoordinator
		primary  *agent.Primary
	)

	BeforeEach(func() {
		provider = &scriptedProvider{usage: llm.Usage{InputTokens: 50, OutputTokens: 5}}
		rt = &fakeCoordinator{}
		primary = agent.NewPrimary(agent.PrimaryOptions{
			Session:       llm.NewSession(provider, "claude-sonnet-4-20250514"),
			Runtime:       rt,
			Streamer:      streamers.NopChatHandler{},
			Profiles:      []string{"reviewer"},
			ContextWindow: 200000,
		})
	})

	It("answers plain questions inside a turn", func() {
		provider.replies = []string{"<ANSWER>\nHello there\n</ANSWER>"}

		answer, err := primary.Turn(context.Background(), "hi")
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("Hello there"))
		Expect(rt.began).To(Equal([]string{"hi"}))
		Expect(rt.ended).To(Equal(1))
		Expect(rt.usageFor).To(ContainElement(orchestrator.MainParticipant))
	})

	It("offers the delegation tools and profiles", func() {
		provider.replies = []string{"<ANSWER>ok</ANSWER>"}

		_, err := primary.Turn(context.Background(), "hi")
		Expect(err).NotTo(HaveOccurred())

		system := provider.Requests()[0].Messages[0].Content
		for _, name := range []string{"spawn_agent", "report_progress", "list_agents", "view_agent_log", "cancel_agent"} {
			Expect(system).To(ContainSubstring("### " + name))
		}
		Expect(system).To(ContainSubstring("`reviewer`"))
	})

	It("spawns agents and injects their results after the tool call", func() {
		provider.replies = []string{
			`<REASONING>delegate it</REASONING><ACTION>spawn_agent</ACTION><ACTION_INPUT>{"display_name": "Schema review", "prompt": "Review the schema", "checklist": ["schema"]}</ACTION_INPUT>`,
			"<ANSWER>The review is done.</ANSWER>",
		}

		answer, err := primary.Turn(context.Background(), "review my schema")
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("The review is done."))

		Expect(rt.parents).To(Equal([]string{orchestrator.MainParticipant}))
		Expect(rt.spawned[0].DisplayName).To(Equal("Schema review"))
		Expect(rt.spawned[0].Checklist).To(Equal([]string{"schema"}))

		second := lastUserMessage(provider.Requests()[1])
		Expect(second).To(HavePrefix("<OBSERVATION>\n"))
		Expect(second).To(ContainSubstring(`"agent_id":"a-1"`))
		Expect(second).To(ContainSubstring("<AGENT_RESULT agent_id=\"a-1\">\n- [x] schema\n</AGENT_RESULT>"))
	})

	It("leads the turn with deferred results", func() {
		rt.pending = []orchestrator.Delivery{{AgentID: "a-9", Markdown: "late result", Deferred: true}}
		provider.replies = []string{"<ANSWER>noted</ANSWER>"}

		_, err := primary.Turn(context.Background(), "what happened?")
		Expect(err).NotTo(HaveOccurred())

		first := lastUserMessage(provider.Requests()[0])
		Expect(first).To(HavePrefix(`<AGENT_RESULT agent_id="a-9" deferred="true">`))
		Expect(first).To(HaveSuffix("what happened?"))
	})

	It("prefixes queued continuations once", func() {
		primary.AddContinuation(orchestrator.Continuation{Round: 2, Markdown: "## Round 2\n- 1 agent completed"})
		provider.replies = []string{"<ANSWER>one</ANSWER>", "<ANSWER>two</ANSWER>"}

		_, err := primary.Turn(context.Background(), "continue")
		Expect(err).NotTo(HaveOccurred())
		_, err = primary.Turn(context.Background(), "and again")
		Expect(err).NotTo(HaveOccurred())

		first := lastUserMessage(provider.Requests()[0])
		Expect(first).To(HavePrefix("<CONTINUATION round=\"2\">\n## Round 2"))
		Expect(first).To(HaveSuffix("continue"))

		second := lastUserMessage(provider.Requests()[1])
		Expect(second).To(Equal("and again"))
		Expect(strings.Count(second, "CONTINUATION")).To(BeZero())
	})

	It("runs continuation turns without replacing the user's message", func() {
		primary.AddContinuation(orchestrator.Continuation{Round: 1, Markdown: "## Round 1"})
		provider.replies = []string{"<ANSWER>picked up</ANSWER>"}

		answer, err := primary.Continue(context.Background(), "Continue from the continuation above.")
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("picked up"))
		Expect(rt.began).To(BeEmpty())
		Expect(rt.continued).To(Equal(1))
		Expect(rt.ended).To(Equal(1))
		Expect(lastUserMessage(provider.Requests()[0])).To(HavePrefix("<CONTINUATION round=\"1\">"))
	})

	It("ends the turn when the model fails", func() {
		provider.fail = errors.New("rate limited")

		_, err := primary.Turn(context.Background(), "hi")
		Expect(err).To(MatchError("rate limited"))
		Expect(rt.ended).To(Equal(1))
	})
})
