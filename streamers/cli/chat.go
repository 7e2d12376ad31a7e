package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// ChatHandler renders the primary conversation on a Terminal
type ChatHandler struct {
	term             *Terminal
	renderer         *glamour.TermRenderer
	reasoningStarted bool
	answer           strings.Builder
}

func NewChatHandler(term *Terminal) *ChatHandler {
	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	return &ChatHandler{term: term, renderer: renderer}
}

func (s *ChatHandler) Welcome(profileName string, modelName string) {
	s.term.Printf("%s%sStarting session with profile '%s'%s (model: %s)\n", ColorBold, ColorOrange, profileName, ColorReset, modelName)
	s.term.Printf("%sDelegated agents run in the background. Type 'exit' or 'quit' to end the session.%s\n\n", ColorGray, ColorReset)
}

func (s *ChatHandler) AwaitClientAnswer() (string, error) {
	s.term.Printf("%s>  %s", ColorGray, ColorReset)
	input, err := s.term.ReadLine()
	if err != nil {
		return "", err
	}
	if input != "" {
		// replace the echoed line with a colored copy
		s.term.Printf("\033[1A\033[K%s>  %s%s%s\n\n", ColorGray, ColorLightBrown, input, ColorReset)
	}
	return input, nil
}

func (s *ChatHandler) Goodbye() {
	s.term.StopSpin()
	s.term.Printf("%sGoodbye!%s\n", ColorGray, ColorReset)
}

func (s *ChatHandler) Error(err error) {
	s.term.StopSpin()
	s.term.Printf("%s✗ %v%s\n\n", ColorRed, err, ColorReset)
}

func (s *ChatHandler) Thinking() {
	s.term.Spin("Thinking...")
}

func (s *ChatHandler) CallingTool(toolName string, payload string) {
	s.term.Spin(fmt.Sprintf("Calling %s%s%s...", ColorBold, toolName, ColorReset))
}

func (s *ChatHandler) ToolComplete(toolName string) {
	s.term.StopSpin()
	s.term.Printf("%s✓%s %s%s%s called\n\n", ColorGray, ColorReset, ColorBold, toolName, ColorReset)
}

func (s *ChatHandler) PublishReasoningChunk(chunk string) {
	if !s.reasoningStarted {
		s.term.StopSpin()
		s.term.Printf("%s%sReasoning%s\n", ColorBold, ColorMagenta, ColorReset)
		s.reasoningStarted = true
	}
	s.term.Printf("%s%s%s%s", ColorItalic, ColorMagenta, chunk, ColorReset)
}

func (s *ChatHandler) FinishReasoning() {
	if s.reasoningStarted {
		s.term.Printf("\n\n")
		s.reasoningStarted = false
	}
	s.term.Spin("Waiting for answer...")
}

// PublishAnswerChunk buffers the answer so it can be rendered as a whole
func (s *ChatHandler) PublishAnswerChunk(chunk string) {
	s.answer.WriteString(chunk)
}

func (s *ChatHandler) FinishAnswer() {
	s.term.StopSpin()

	content := s.answer.String()
	s.answer.Reset()
	if content == "" {
		return
	}

	rendered := content
	if s.renderer != nil {
		if out, err := s.renderer.Render(content); err == nil {
			rendered = out
		}
	}
	s.term.Printf("%s•%s%s\n\n", ColorGray, ColorReset, strings.TrimSpace(rendered))
}
