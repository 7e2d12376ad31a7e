package cli_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"conductor/streamers/cli"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ = Describe("ChatHandler", func() {
	var (
		out  *syncBuffer
		term *cli.Terminal
		chat *cli.ChatHandler
	)

	setup := func(input string) {
		out = &syncBuffer{}
		term = cli.NewTerminal(strings.NewReader(input), out)
		chat = cli.NewChatHandler(term)
	}

	BeforeEach(func() {
		setup("")
	})

	It("reads trimmed input lines until EOF", func() {
		setup("  review the schema  \n")
		line, err := chat.AwaitClientAnswer()
		Expect(err).NotTo(HaveOccurred())
		Expect(line).To(Equal("review the schema"))

		_, err = chat.AwaitClientAnswer()
		Expect(errors.Is(err, io.EOF)).To(BeTrue())
	})

	It("prints the buffered answer once it is finished", func() {
		chat.PublishAnswerChunk("All three ")
		chat.PublishAnswerChunk("agents are running.")
		Expect(out.String()).To(BeEmpty())

		chat.FinishAnswer()
		Expect(out.String()).To(ContainSubstring("agents are running."))

		before := out.String()
		chat.FinishAnswer()
		Expect(out.String()).To(Equal(before))
	})

	It("clears the spinner line before other output", func() {
		chat.Thinking()
		Eventually(out.String).Should(ContainSubstring("Thinking..."))

		term.Printf("agent finished\n")
		Expect(out.String()).To(ContainSubstring("\r\033[Kagent finished\n"))

		chat.ToolComplete("spawn_agent")
		Expect(out.String()).To(HaveSuffix(cli.ColorBold + "spawn_agent" + cli.ColorReset + " called\n\n"))
	})

	It("reports errors after stopping the spinner", func() {
		chat.CallingTool("bash", `{"command": "ls"}`)
		chat.Error(errors.New("provider unavailable"))
		Expect(out.String()).To(ContainSubstring("provider unavailable"))

		// stopped: no frame follows the error line
		Consistently(out.String, "200ms", "50ms").Should(HaveSuffix(cli.ColorReset + "\n\n"))
	})
})
