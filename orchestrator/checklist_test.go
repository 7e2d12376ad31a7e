package orchestrator_test

import (
	"context"

	"conductor/orchestrator"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("EvaluateChecklist", func() {
	It("counts checked task items that match the checklist", func() {
		output := `
Work log:

- [x] Update the README
- [ ] Add integration tests
- [x] bump   VERSION file
`
		report := orchestrator.EvaluateChecklist([]string{"update the readme", "Add integration tests", "Bump version"}, output)
		Expect(report.Total).To(Equal(3))
		Expect(report.Completed).To(Equal(2))
		Expect(report.Incomplete).To(Equal([]string{"Add integration tests"}))
		Expect(report.AllCompleted()).To(BeFalse())
		Expect(report.SuccessRate()).To(BeNumerically("~", 2.0/3.0, 0.001))
	})

	It("ignores plain mentions outside task lists", func() {
		report := orchestrator.EvaluateChecklist([]string{"deploy"}, "I did not deploy anything.")
		Expect(report.Completed).To(BeZero())
	})

	It("does not let a short checked task complete a longer item", func() {
		output := "- [x] tests\n- [x] write the integration tests for the api\n"
		report := orchestrator.EvaluateChecklist([]string{"write integration tests", "tests"}, output)
		Expect(report.Completed).To(Equal(1))
		Expect(report.Incomplete).To(Equal([]string{"write integration tests"}))
	})

	It("treats an empty checklist as complete", func() {
		report := orchestrator.EvaluateChecklist(nil, "anything")
		Expect(report.AllCompleted()).To(BeTrue())
		Expect(report.SuccessRate()).To(Equal(1.0))
	})
})

var _ = Describe("MarkdownCondenser", func() {
	It("keeps structure and drops code", func() {
		transcript := "# Findings\n\nThe parser is slow. It allocates per token and never reuses buffers.\n\n" +
			"- [x] profiled the lexer\n- [ ] rewrote the parser\n\n```go\nfunc main() {}\n```\n"
		out, err := orchestrator.MarkdownCondenser{}.Summarize(context.Background(), "abcdef0123456789", transcript)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HavePrefix("_Summary of agent abcdef01 output"))
		Expect(out).To(ContainSubstring("# Findings"))
		Expect(out).To(ContainSubstring("The parser is slow."))
		Expect(out).NotTo(ContainSubstring("never reuses buffers"))
		Expect(out).To(ContainSubstring("profiled the lexer"))
		Expect(out).To(ContainSubstring("1 code block(s) omitted"))
		Expect(out).NotTo(ContainSubstring("func main"))
	})

	It("fails on a transcript with nothing to keep", func() {
		_, err := orchestrator.MarkdownCondenser{}.Summarize(context.Background(), "x", "   ")
		Expect(err).To(HaveOccurred())
	})
})
