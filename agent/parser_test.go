package agent_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"conductor/agent"
	"conductor/streamers"
)

type recordingChat struct {
	streamers.NopChatHandler
	reasoning string
	answer    string
	finished  int
}

func (r *recordingChat) PublishReasoningChunk(c string) { r.reasoning += c }
func (r *recordingChat) PublishAnswerChunk(c string)    { r.answer += c }
func (r *recordingChat) FinishAnswer()                  { r.finished++ }

func feed(p *agent.MessageParser, s string, size int) {
	for len(s) > 0 {
		n := size
		if n > len(s) {
			n = len(s)
		}
		p.ProcessChunk(s[:n])
		s = s[n:]
	}
}

var _ = Describe("MessageParser", func() {
	It("parses an action split across chunks", func() {
		chat := &recordingChat{}
		p := agent.NewMessageParser(chat)

		feed(p, "<REASONING>\nneed a helper\n</REASONING>\n<ACTION>spawn_agent</ACTION>\n<ACTION_INPUT>{\"display_name\": \"A\"}</ACTION_INPUT>", 3)
		p.Finish()

		Expect(chat.reasoning).To(Equal("need a helper"))
		Expect(p.GetAction()).To(Equal("spawn_agent"))
		Expect(p.GetActionInput()).To(Equal(`{"display_name": "A"}`))
		Expect(p.GetAnswer()).To(BeEmpty())
	})

	It("captures action input cut off by the stop sequence", func() {
		p := agent.NewMessageParser(&recordingChat{})
		feed(p, "<ACTION>list_agents</ACTION><ACTION_INPUT>{}", 5)
		p.Finish()

		Expect(p.GetAction()).To(Equal("list_agents"))
		Expect(p.GetActionInput()).To(Equal("{}"))
	})

	It("streams answers", func() {
		chat := &recordingChat{}
		p := agent.NewMessageParser(chat)
		feed(p, "<ANSWER>\nAll three agents are running.\n</ANSWER>", 4)
		p.Finish()

		Expect(p.GetAnswer()).To(Equal("All three agents are running."))
		Expect(chat.answer).To(Equal("All three agents are running."))
		Expect(chat.finished).To(Equal(1))
	})

	It("keeps the tail of an unterminated answer", func() {
		chat := &recordingChat{}
		p := agent.NewMessageParser(chat)
		feed(p, "<ANSWER>Done with the review", 6)
		p.Finish()

		Expect(p.GetAnswer()).To(Equal("Done with the review"))
		Expect(chat.answer).To(Equal("Done with the review"))
	})
})
