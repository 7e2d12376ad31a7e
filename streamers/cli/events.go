package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"conductor/orchestrator"

	"github.com/charmbracelet/glamour"
)

// EventHandler renders orchestrator events to the terminal. End Results and
// continuations are rendered as markdown, the rest as single status lines.
type EventHandler struct {
	mu       sync.Mutex
	out      io.Writer
	renderer *glamour.TermRenderer
	verbose  bool
}

// NewEventHandler creates a terminal event renderer writing to out (stdout
// when nil). With verbose, progress events are printed too.
func NewEventHandler(out io.Writer, verbose bool) *EventHandler {
	if out == nil {
		out = os.Stdout
	}
	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	return &EventHandler{
		out:      out,
		renderer: renderer,
		verbose:  verbose,
	}
}

func (h *EventHandler) HandleEvent(e orchestrator.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	short := orchestrator.ShortID(e.Metadata.AgentID)
	switch e.Kind {
	case orchestrator.EventAgentSpawned:
		fmt.Fprintf(h.out, "%s↳%s %s\n", ColorOrange, ColorReset, h.inline(e.Body))

	case orchestrator.EventAgentProgress:
		if h.verbose {
			fmt.Fprintf(h.out, "%s  %s │ %s%s\n", ColorGray, short, lastLine(e.Body), ColorReset)
		}

	case orchestrator.EventAgentCompleted:
		fmt.Fprintf(h.out, "%s✓%s agent %s%s%s finished %s%s%s\n",
			ColorGray, ColorReset, ColorBold, short, ColorReset, ColorGray, contextUsage(e.Metadata.ContextTokens), ColorReset)

	case orchestrator.EventEndResultsComposed, orchestrator.EventContinuationPosted:
		fmt.Fprintf(h.out, "\n%s\n\n", h.render(e.Body))
	}
}

func (h *EventHandler) render(markdown string) string {
	if h.renderer == nil {
		return markdown
	}
	out, err := h.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimSpace(out)
}

// inline strips the markdown emphasis a status line does not need
func (h *EventHandler) inline(s string) string {
	return strings.NewReplacer("**", "", "`", "").Replace(s)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if len(s) > 120 {
		s = "…" + s[len(s)-119:]
	}
	return s
}

func contextUsage(t orchestrator.ContextTokens) string {
	if t.Limit == 0 {
		return ""
	}
	return fmt.Sprintf("(%dk/%dk tokens)", t.Total/1000, t.Limit/1000)
}
