package agent_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"conductor/agent"
	"conductor/config"
	"conductor/llm"
	"conductor/orchestrator"
)

type usageReport struct {
	used, limit int
}

type launchRecorder struct {
	mu       sync.Mutex
	progress []string
	usage    []usageReport
}

func (r *launchRecorder) request(id string, spec orchestrator.TaskSpec) orchestrator.LaunchRequest {
	return orchestrator.LaunchRequest{
		AgentID: id,
		Spec:    spec,
		Progress: func(m string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.progress = append(r.progress, m)
		},
		Usage: func(used, limit int) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.usage = append(r.usage, usageReport{used, limit})
		},
	}
}

func (r *launchRecorder) Progress() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.progress...)
}

func (r *launchRecorder) Usage() []usageReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]usageReport(nil), r.usage...)
}

type fakePlugins struct {
	paths  []string
	engine orchestrator.Engine
}

func (f *fakePlugins) Engine(ctx context.Context, path string) (orchestrator.Engine, error) {
	f.paths = append(f.paths, path)
	if f.engine == nil {
		return nil, errors.New("plugin exited")
	}
	return f.engine, nil
}

type stubEngine struct {
	launched []orchestrator.LaunchRequest
}

func (s *stubEngine) Launch(ctx context.Context, req orchestrator.LaunchRequest) (orchestrator.Conversation, error) {
	s.launched = append(s.launched, req)
	return nil, errors.New("stub")
}

func waitOutcome(conv orchestrator.Conversation) orchestrator.Outcome {
	EventuallyWithOffset(1, conv.Done(), 2*time.Second).Should(BeClosed())
	return conv.Outcome()
}

var _ = Describe("Engine", func() {
	var (
		ctx      context.Context
		provider *scriptedProvider
		built    int
		plugins  *fakePlugins
		cfg      *config.Config
		engine   *agent.Engine
		recorder *launchRecorder
		reviewer config.Profile
		spec     orchestrator.TaskSpec
	)

	BeforeEach(func() {
		ctx = context.Background()
		provider = &scriptedProvider{usage: llm.Usage{InputTokens: 900, OutputTokens: 100}}
		built = 0
		plugins = &fakePlugins{}
		recorder = &launchRecorder{}
		reviewer = config.Profile{Name: "reviewer", Model: "claude_sonnet_4", MaxSteps: 3}
		cfg = testConfig(reviewer, config.Profile{Name: "external", Plugin: "./plugins/echo"})
		spec = orchestrator.TaskSpec{DisplayName: "Schema review", Prompt: "Review the schema", Checklist: []string{"schema"}, Profile: "reviewer"}
	})

	JustBeforeEach(func() {
		var err error
		engine, err = agent.NewEngine(agent.EngineOptions{
			Config:  cfg,
			Plugins: plugins,
			NewProvider: func(ctx context.Context, m *config.Model) (llm.Provider, error) {
				built++
				return provider, nil
			},
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("completes with the answer as output", func() {
		provider.replies = []string{"<ANSWER>\n- [x] schema\n</ANSWER>"}

		conv, err := engine.Launch(ctx, recorder.request("agent-1", spec))
		Expect(err).NotTo(HaveOccurred())

		out := waitOutcome(conv)
		Expect(out.Status).To(Equal(orchestrator.StatusCompleted))
		Expect(out.Output).To(Equal("- [x] schema"))
		Expect(out.AgentID).To(Equal("agent-1"))
		Expect(out.Metrics.InputTokens).To(Equal(900))
		Expect(out.Metrics.OutputTokens).To(Equal(100))
	})

	It("puts the task into the system prompt", func() {
		provider.replies = []string{"<ANSWER>done</ANSWER>"}

		conv, err := engine.Launch(ctx, recorder.request("agent-1", spec))
		Expect(err).NotTo(HaveOccurred())
		waitOutcome(conv)

		req := provider.Requests()[0]
		Expect(req.Model).To(Equal("claude-sonnet-4-20250514"))
		Expect(req.StopSequences).To(ContainElement("___STOP___"))
		Expect(req.Messages[0].Role).To(Equal(llm.RoleSystem))
		Expect(req.Messages[0].Content).To(ContainSubstring("Review the schema"))
		Expect(req.Messages[0].Content).To(ContainSubstring("- [ ] schema"))
		Expect(req.Messages[0].Content).To(ContainSubstring("### report_progress"))
	})

	It("uses a final progress report as the result and stops", func() {
		provider.replies = []string{
			`<ACTION>report_progress</ACTION><ACTION_INPUT>{"message": "## Findings\n- [x] schema", "is_final": true}</ACTION_INPUT>`,
			"<ANSWER>should never be asked for</ANSWER>",
		}

		conv, err := engine.Launch(ctx, recorder.request("agent-1", spec))
		Expect(err).NotTo(HaveOccurred())

		out := waitOutcome(conv)
		Expect(out.Status).To(Equal(orchestrator.StatusCompleted))
		Expect(out.Output).To(Equal("## Findings\n- [x] schema"))
		Expect(out.Metrics.ToolCalls).To(Equal(1))
		Expect(provider.Requests()).To(HaveLen(1))
		Expect(recorder.Usage()).To(HaveLen(1))
		Expect(recorder.Usage()[0].limit).To(Equal(200000))
		Expect(recorder.Usage()[0].used).To(BeNumerically(">", 0))
	})

	It("streams progress from reasoning", func() {
		provider.replies = []string{"<REASONING>\nlooking at the migrations\nthen the models\n</REASONING>\n<ANSWER>done</ANSWER>"}

		conv, err := engine.Launch(ctx, recorder.request("agent-1", spec))
		Expect(err).NotTo(HaveOccurred())
		waitOutcome(conv)

		Expect(strings.Join(recorder.Progress(), "\n")).To(ContainSubstring("looking at the migrations"))
	})

	It("fails on provider errors", func() {
		provider.fail = errors.New("overloaded")

		conv, err := engine.Launch(ctx, recorder.request("agent-1", spec))
		Expect(err).NotTo(HaveOccurred())

		out := waitOutcome(conv)
		Expect(out.Status).To(Equal(orchestrator.StatusFailed))
		Expect(out.Error).To(ContainSubstring("overloaded"))
	})

	It("fails when the step bound is reached", func() {
		call := `<ACTION>report_progress</ACTION><ACTION_INPUT>{"message": "still going"}</ACTION_INPUT>`
		provider.replies = []string{call, call, call, call}

		conv, err := engine.Launch(ctx, recorder.request("agent-1", spec))
		Expect(err).NotTo(HaveOccurred())

		out := waitOutcome(conv)
		Expect(out.Status).To(Equal(orchestrator.StatusFailed))
		Expect(out.Error).To(ContainSubstring("step limit"))
		Expect(provider.Requests()).To(HaveLen(3))
	})

	It("fails when the model never produces a result", func() {
		provider.replies = []string{"<REASONING>hmm</REASONING>"}

		conv, err := engine.Launch(ctx, recorder.request("agent-1", spec))
		Expect(err).NotTo(HaveOccurred())

		out := waitOutcome(conv)
		Expect(out.Status).To(Equal(orchestrator.StatusFailed))
		Expect(out.Error).To(Equal("finished without a result"))
	})

	It("stops when cancelled", func() {
		provider.replies = []string{"<block>"}

		conv, err := engine.Launch(ctx, recorder.request("agent-1", spec))
		Expect(err).NotTo(HaveOccurred())
		Consistently(conv.Done(), 50*time.Millisecond).ShouldNot(BeClosed())

		conv.Cancel()

		out := waitOutcome(conv)
		Expect(out.Status).To(Equal(orchestrator.StatusCancelled))
	})

	It("shares one provider per model block", func() {
		provider.replies = []string{"<ANSWER>a</ANSWER>", "<ANSWER>b</ANSWER>"}

		first, err := engine.Launch(ctx, recorder.request("agent-1", spec))
		Expect(err).NotTo(HaveOccurred())
		second, err := engine.Launch(ctx, recorder.request("agent-2", spec))
		Expect(err).NotTo(HaveOccurred())
		waitOutcome(first)
		waitOutcome(second)

		Expect(built).To(Equal(1))
	})

	It("rejects unknown profiles and tools", func() {
		spec.Profile = "ghost"
		_, err := engine.Launch(ctx, recorder.request("agent-1", spec))
		Expect(err).To(MatchError(ContainSubstring("profile 'ghost' not found")))
	})

	Context("with tools granted by the profile", func() {
		BeforeEach(func() {
			cfg.Profiles[0].Tools = []string{"bash", "teleport"}
		})

		It("rejects unknown tool names", func() {
			_, err := engine.Launch(ctx, recorder.request("agent-1", spec))
			Expect(err).To(MatchError(ContainSubstring("unknown tool 'teleport'")))
		})
	})

	It("hands plugin profiles to the plugin engine", func() {
		stub := &stubEngine{}
		plugins.engine = stub
		spec.Profile = "external"

		_, err := engine.Launch(ctx, recorder.request("agent-1", spec))
		Expect(err).To(MatchError("stub"))
		Expect(plugins.paths).To(Equal([]string{"./plugins/echo"}))
		Expect(stub.launched).To(HaveLen(1))
		Expect(stub.launched[0].AgentID).To(Equal("agent-1"))
	})
})

var _ = Describe("LLMSummarizer", func() {
	It("condenses with a fresh session", func() {
		provider := &scriptedProvider{replies: []string{"  ## Summary\n- kept  "}}
		s := agent.NewLLMSummarizer(provider, "claude-sonnet-4-20250514", 1024)

		out, err := s.Summarize(context.Background(), "agent-1", "long log")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("## Summary\n- kept"))

		req := provider.Requests()[0]
		Expect(req.MaxTokens).To(Equal(1024))
		Expect(lastUserMessage(req)).To(ContainSubstring("long log"))
	})

	It("rejects empty summaries", func() {
		provider := &scriptedProvider{replies: []string{"   "}}
		_, err := agent.NewLLMSummarizer(provider, "m", 0).Summarize(context.Background(), "agent-1", "log")
		Expect(err).To(HaveOccurred())
	})
})
