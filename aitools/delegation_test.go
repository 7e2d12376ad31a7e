package aitools_test

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"conductor/aitools"
	"conductor/orchestrator"
)

type fakeDelegator struct {
	spawned   []orchestrator.TaskSpec
	parents   []string
	progress  map[string][]string
	records   []orchestrator.AgentRecord
	logs      map[string]orchestrator.LogView
	cancelled []string
	cancelErr error
}

func newFakeDelegator() *fakeDelegator {
	return &fakeDelegator{
		progress: make(map[string][]string),
		logs:     make(map[string]orchestrator.LogView),
	}
}

func (f *fakeDelegator) Spawn(ctx context.Context, parentID string, spec orchestrator.TaskSpec) (orchestrator.SpawnResult, error) {
	if err := spec.Validate(); err != nil {
		return orchestrator.SpawnResult{}, err
	}
	f.spawned = append(f.spawned, spec)
	f.parents = append(f.parents, parentID)
	return orchestrator.SpawnResult{AgentID: "agent-1", Status: orchestrator.StatusRunning}, nil
}

func (f *fakeDelegator) ReportProgress(agentID, message string) error {
	if _, ok := f.logs[agentID]; !ok {
		return orchestrator.ErrAgentNotFound
	}
	f.progress[agentID] = append(f.progress[agentID], message)
	return nil
}

func (f *fakeDelegator) List() []orchestrator.AgentRecord {
	return f.records
}

func (f *fakeDelegator) ViewLog(agentID string) (orchestrator.LogView, error) {
	v, ok := f.logs[agentID]
	if !ok {
		return orchestrator.LogView{}, orchestrator.ErrAgentNotFound
	}
	return v, nil
}

func (f *fakeDelegator) Cancel(ctx context.Context, agentID string) error {
	f.cancelled = append(f.cancelled, agentID)
	return f.cancelErr
}

func decode(s string) map[string]any {
	var out map[string]any
	ExpectWithOffset(1, json.Unmarshal([]byte(s), &out)).To(Succeed())
	return out
}

func toolNamed(tools []aitools.Tool, name string) aitools.Tool {
	for _, t := range tools {
		if t.ToolName() == name {
			return t
		}
	}
	Fail("no tool " + name)
	return nil
}

var _ = Describe("DelegationTools", func() {
	var (
		ctx   context.Context
		d     *fakeDelegator
		tools []aitools.Tool
	)

	BeforeEach(func() {
		ctx = context.Background()
		d = newFakeDelegator()
		tools = aitools.DelegationTools(d, "main")
	})

	It("exposes the delegation tool set", func() {
		var names []string
		for _, t := range tools {
			names = append(names, t.ToolName())
			Expect(t.ToolPayloadSchema().String()).To(HavePrefix(`{"type":"object"`))
		}
		Expect(names).To(ConsistOf("spawn_agent", "report_progress", "list_agents", "view_agent_log", "cancel_agent"))
	})

	Describe("spawn_agent", func() {
		It("spawns under the bound parent and returns the id", func() {
			out := toolNamed(tools, "spawn_agent").Call(ctx, `{
				"display_name": "Schema review",
				"prompt": "Review the schema",
				"checklist": ["tables", "indexes"],
				"profile": "reviewer"
			}`)

			res := decode(out)
			Expect(res).To(HaveKeyWithValue("agent_id", "agent-1"))
			Expect(res).To(HaveKeyWithValue("status", "running"))
			Expect(d.parents).To(Equal([]string{"main"}))
			Expect(d.spawned[0].Checklist).To(Equal([]string{"tables", "indexes"}))
			Expect(d.spawned[0].Profile).To(Equal("reviewer"))
		})

		It("returns validation errors without spawning", func() {
			out := toolNamed(tools, "spawn_agent").Call(ctx, `{"prompt": "Review the schema"}`)

			Expect(decode(out)).To(HaveKeyWithValue("error", "display_name is required"))
			Expect(d.spawned).To(BeEmpty())
		})

		It("reports malformed input", func() {
			out := toolNamed(tools, "spawn_agent").Call(ctx, `{"display_name": 3}`)
			Expect(decode(out)["error"]).To(HavePrefix("invalid input"))
		})
	})

	Describe("report_progress", func() {
		It("records progress for known agents", func() {
			d.logs["agent-1"] = orchestrator.LogView{AgentID: "agent-1"}
			out := toolNamed(tools, "report_progress").Call(ctx, `{"agent_id": "agent-1", "message": "halfway"}`)
			Expect(decode(out)).To(HaveKeyWithValue("status", "ok"))
			Expect(d.progress["agent-1"]).To(Equal([]string{"halfway"}))
		})

		It("rejects unknown agents", func() {
			out := toolNamed(tools, "report_progress").Call(ctx, `{"agent_id": "nope", "message": "halfway"}`)
			Expect(decode(out)).To(HaveKeyWithValue("error", orchestrator.ErrAgentNotFound.Error()))
		})
	})

	It("lists agents compactly", func() {
		d.records = []orchestrator.AgentRecord{{
			AgentID:        "agent-1",
			DisplayName:    "A",
			Status:         orchestrator.StatusRunning,
			Round:          2,
			LatestProgress: "reading files",
			CreatedAt:      time.Now(),
		}}

		out := toolNamed(tools, "list_agents").Call(ctx, `{}`)

		var res struct {
			Agents []map[string]any `json:"agents"`
		}
		Expect(json.Unmarshal([]byte(out), &res)).To(Succeed())
		Expect(res.Agents).To(HaveLen(1))
		Expect(res.Agents[0]).To(HaveKeyWithValue("display_name", "A"))
		Expect(res.Agents[0]).To(HaveKeyWithValue("round", BeNumerically("==", 2)))
		Expect(res.Agents[0]).To(HaveKeyWithValue("latest_progress", "reading files"))
	})

	Describe("view_agent_log", func() {
		It("marks summarized logs", func() {
			d.logs["agent-1"] = orchestrator.LogView{AgentID: "agent-1", Body: "## Summary", Summarized: true}
			out := toolNamed(tools, "view_agent_log").Call(ctx, `{"agent_id": "agent-1"}`)
			Expect(out).To(Equal("[summarized]\n\n## Summary"))
		})

		It("says when there is no output yet", func() {
			d.logs["agent-1"] = orchestrator.LogView{AgentID: "agent-1"}
			out := toolNamed(tools, "view_agent_log").Call(ctx, `{"agent_id": "agent-1"}`)
			Expect(out).To(Equal("(no output yet)"))
		})
	})

	Describe("cancel_agent", func() {
		It("cancels the agent", func() {
			out := toolNamed(tools, "cancel_agent").Call(ctx, `{"agent_id": "agent-1"}`)
			Expect(decode(out)).To(HaveKeyWithValue("status", "cancelled"))
			Expect(d.cancelled).To(Equal([]string{"agent-1"}))
		})

		It("reports a forced cancel", func() {
			d.cancelErr = &orchestrator.CancellationTimeout{AgentID: "agent-1", Grace: time.Second}
			out := toolNamed(tools, "cancel_agent").Call(ctx, `{"agent_id": "agent-1"}`)
			Expect(decode(out)).To(HaveKeyWithValue("forced", true))
		})

		It("passes other errors through", func() {
			d.cancelErr = orchestrator.ErrAlreadyTerminal
			out := toolNamed(tools, "cancel_agent").Call(ctx, `{"agent_id": "agent-1"}`)
			Expect(decode(out)).To(HaveKeyWithValue("error", orchestrator.ErrAlreadyTerminal.Error()))
		})
	})
})

var _ = Describe("ChildProgressTool", func() {
	It("routes progress and final results", func() {
		var progress []string
		var final string
		tool := &aitools.ChildProgressTool{
			OnProgress: func(m string) { progress = append(progress, m) },
			OnFinal:    func(m string) { final = m },
		}

		Expect(tool.Call(context.Background(), `{"message": "cloned repo"}`)).To(Equal(`{"status": "ok"}`))
		Expect(tool.Call(context.Background(), `{"message": "- [x] done", "is_final": true}`)).To(ContainSubstring(`"final": true`))

		Expect(progress).To(Equal([]string{"cloned repo"}))
		Expect(final).To(Equal("- [x] done"))
	})

	It("rejects empty messages", func() {
		tool := &aitools.ChildProgressTool{}
		Expect(tool.Call(context.Background(), `{"message": "  "}`)).To(ContainSubstring("message is required"))
	})
})
