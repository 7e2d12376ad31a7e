package orchestrator_test

import (
	"strings"

	"conductor/orchestrator"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Normalize", func() {
	rec := func(status orchestrator.Status, detail string) orchestrator.AgentRecord {
		return orchestrator.AgentRecord{
			AgentID:     "0123456789abcdef",
			DisplayName: "indexer",
			Purpose:     "build the index",
			Status:      status,
			Detail:      detail,
		}
	}

	It("renders heading, purpose and body", func() {
		out := orchestrator.Normalize(rec(orchestrator.StatusCompleted, ""), "indexed 42 files", 0)
		Expect(out).To(HavePrefix("### Subagent indexer (01234567) ✅\n"))
		Expect(out).To(ContainSubstring("**Purpose:** build the index"))
		Expect(out).To(ContainSubstring("indexed 42 files"))
	})

	DescribeTable("placeholders when there is no output",
		func(status orchestrator.Status, detail, want string) {
			out := orchestrator.Normalize(rec(status, detail), "", 0)
			Expect(out).To(ContainSubstring(orchestrator.StatusIcon(status)))
			Expect(out).To(ContainSubstring(want))
		},
		Entry("failed", orchestrator.StatusFailed, "tests errored", "**Error:** tests errored"),
		Entry("timed out", orchestrator.StatusTimedOut, "", "_No result: timed out_"),
		Entry("cancelled", orchestrator.StatusCancelled, "", "Partial output was discarded"),
		Entry("completed", orchestrator.StatusCompleted, "", "_No output._"),
	)

	Describe("Truncate", func() {
		It("leaves short content alone", func() {
			out, cut := orchestrator.Truncate("short", 10)
			Expect(cut).To(BeFalse())
			Expect(out).To(Equal("short"))
		})

		It("cuts on a line boundary and appends the marker", func() {
			line := strings.Repeat("x", 39)
			content := strings.Repeat(line+"\n", 10)
			out, cut := orchestrator.Truncate(content, 25)
			Expect(cut).To(BeTrue())
			Expect(out).To(HaveSuffix("\n\n" + orchestrator.TruncationMarker))
			body := strings.TrimSuffix(out, "\n\n"+orchestrator.TruncationMarker)
			for _, l := range strings.Split(body, "\n") {
				Expect(l).To(Equal(line))
			}
			Expect(len(body)).To(BeNumerically("<=", 100))
		})

		It("applies the default limit in Normalize", func() {
			big := strings.Repeat("word ", orchestrator.DefaultOutputTokenLimit*2)
			out := orchestrator.Normalize(rec(orchestrator.StatusCompleted, ""), big, orchestrator.DefaultOutputTokenLimit)
			Expect(out).To(ContainSubstring(orchestrator.TruncationMarker))
		})
	})
})
