package orchestrator

import (
	"fmt"
	"strings"
	"time"
)

type Badge string

const (
	BadgeSuccess Badge = "success"
	BadgeWarning Badge = "warning"
	BadgeFailure Badge = "failure"
	BadgeTimeout Badge = "timeout"
)

// BadgeFor maps a terminal status and checklist report to a badge
func BadgeFor(status Status, checklist ChecklistReport) Badge {
	switch status {
	case StatusCompleted:
		if checklist.AllCompleted() {
			return BadgeSuccess
		}
		return BadgeWarning
	case StatusTimedOut:
		return BadgeTimeout
	case StatusCancelled:
		return BadgeWarning
	default:
		return BadgeFailure
	}
}

// ResultSection is one agent's part of End Results
type ResultSection struct {
	AgentID     string          `json:"agent_id"`
	DisplayName string          `json:"display_name"`
	Status      Status          `json:"status"`
	Badge       Badge           `json:"badge"`
	Body        string          `json:"body"`
	Detail      string          `json:"detail,omitempty"`
	Metrics     Metrics         `json:"metrics"`
	Checklist   ChecklistReport `json:"checklist"`
}

// EndResults is the composed artifact of one delegation round
type EndResults struct {
	Round      int              `json:"round"`
	Sections   []ResultSection  `json:"sections"`
	Aggregate  AggregateSummary `json:"aggregate"`
	ComposedAt time.Time        `json:"composed_at"`
}

// Compose builds End Results from the round's deliveries, in the given order
func Compose(round int, deliveries []Delivery) EndResults {
	out := EndResults{Round: round, ComposedAt: time.Now()}
	for _, d := range deliveries {
		report := EvaluateChecklist(d.Record.Checklist, d.Outcome.Output)
		if d.Record.Status != StatusCompleted {
			// nothing usable came back, so nothing on the checklist was done
			report = ChecklistReport{Total: len(d.Record.Checklist), Incomplete: append([]string(nil), d.Record.Checklist...)}
		}
		section := ResultSection{
			AgentID:     d.AgentID,
			DisplayName: d.Record.DisplayName,
			Status:      d.Record.Status,
			Badge:       BadgeFor(d.Record.Status, report),
			Body:        d.Markdown,
			Detail:      d.Record.Detail,
			Metrics:     d.Record.Metrics,
			Checklist:   report,
		}
		out.Sections = append(out.Sections, section)

		out.Aggregate.TotalAgents++
		if section.Badge == BadgeSuccess {
			out.Aggregate.SuccessfulAgents++
		}
		out.Aggregate.TotalItems += report.Total
		out.Aggregate.CompletedItems += report.Completed
	}
	return out
}

// Markdown renders the artifact for the primary conversation
func (e EndResults) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## End Results (round %d)\n\n", e.Round)
	for _, s := range e.Sections {
		b.WriteString(strings.TrimRight(s.Body, "\n"))
		fmt.Fprintf(&b, "\n\n**Badge:** %s", s.Badge)
		if s.Checklist.Total > 0 {
			fmt.Fprintf(&b, " · **Checklist:** %d/%d", s.Checklist.Completed, s.Checklist.Total)
		}
		if s.Metrics.InputTokens+s.Metrics.OutputTokens > 0 {
			fmt.Fprintf(&b, " · **Tokens:** %d in / %d out", s.Metrics.InputTokens, s.Metrics.OutputTokens)
		}
		if s.Metrics.ToolCalls > 0 {
			fmt.Fprintf(&b, " · **Tool calls:** %d", s.Metrics.ToolCalls)
		}
		if s.Metrics.Elapsed > 0 {
			fmt.Fprintf(&b, " · **Elapsed:** %s", s.Metrics.Elapsed.Round(time.Second))
		}
		b.WriteString("\n\n")
	}
	a := e.Aggregate
	fmt.Fprintf(&b, "---\n**Aggregate:** %d/%d agents succeeded (%.0f%%)", a.SuccessfulAgents, a.TotalAgents, a.AgentSuccessRate()*100)
	if a.TotalItems > 0 {
		fmt.Fprintf(&b, ", checklist %d/%d items done (%.0f%%)", a.CompletedItems, a.TotalItems, a.ChecklistCompletionRate()*100)
	}
	b.WriteString("\n")
	return b.String()
}

// Continuation is the single follow-up message posted after a round
type Continuation struct {
	Round     int      `json:"round"`
	Markdown  string   `json:"markdown"`
	OpenItems []string `json:"open_items,omitempty"`
	Questions []string `json:"questions,omitempty"`
}

// BuildContinuation lists what is still open after a round and invites the
// user to continue. With nothing open it is a short close-out.
func BuildContinuation(results EndResults, lastUserMessage string) Continuation {
	c := Continuation{Round: results.Round}
	var retry []string

	for _, s := range results.Sections {
		switch s.Badge {
		case BadgeFailure:
			c.OpenItems = append(c.OpenItems, fmt.Sprintf("**%s** failed: %s", s.DisplayName, orDefault(s.Detail, "no detail reported")))
			retry = append(retry, s.DisplayName)
		case BadgeTimeout:
			c.OpenItems = append(c.OpenItems, fmt.Sprintf("**%s** timed out: %s", s.DisplayName, orDefault(s.Detail, "no result before the deadline")))
			retry = append(retry, s.DisplayName)
		case BadgeWarning:
			if s.Status == StatusCancelled {
				c.OpenItems = append(c.OpenItems, fmt.Sprintf("**%s** was cancelled", s.DisplayName))
				retry = append(retry, s.DisplayName)
			}
		}
		if s.Status == StatusCompleted && len(s.Checklist.Incomplete) > 0 {
			c.OpenItems = append(c.OpenItems, fmt.Sprintf("**%s** left checklist items open: %s", s.DisplayName, quoteAll(s.Checklist.Incomplete)))
		}
	}
	c.Questions = OpenQuestions(lastUserMessage)

	var b strings.Builder
	if len(c.OpenItems) == 0 && len(c.Questions) == 0 {
		b.WriteString("All delegated work is finished and every checklist item is satisfied. ")
		b.WriteString("Let me know if there is anything else you'd like to do.\n")
		c.Markdown = b.String()
		return c
	}

	b.WriteString("### Follow-up\n\n")
	if len(c.OpenItems) > 0 {
		b.WriteString("Open items:\n")
		for _, item := range c.OpenItems {
			fmt.Fprintf(&b, "- %s\n", item)
		}
		b.WriteString("\n")
	}
	if len(c.Questions) > 0 {
		b.WriteString("Questions from your last message that still need an answer:\n")
		for _, q := range c.Questions {
			fmt.Fprintf(&b, "- %s\n", q)
		}
		b.WriteString("\n")
	}
	if len(retry) > 0 {
		fmt.Fprintf(&b, "I can retry %s, adjust the plan, or continue with what we have. What would you like to do next?\n", joinNames(retry))
	} else {
		b.WriteString("Tell me how you'd like to proceed, or ask for anything else.\n")
	}
	c.Markdown = b.String()
	return c
}

// OpenQuestions returns the sentences of msg that end with a question mark
func OpenQuestions(msg string) []string {
	var out []string
	start := 0
	for i, r := range msg {
		switch r {
		case '?':
			if q := strings.TrimSpace(msg[start : i+1]); len(q) > 1 {
				out = append(out, q)
			}
			start = i + 1
		case '.', '!', '\n':
			start = i + 1
		}
	}
	return out
}

func quoteAll(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}

func joinNames(names []string) string {
	switch len(names) {
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}
