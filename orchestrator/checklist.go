package orchestrator

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var gfm = goldmark.New(goldmark.WithExtensions(extension.GFM))

// ChecklistReport is the advisory evaluation of one agent's checklist
type ChecklistReport struct {
	Total      int      `json:"total"`
	Completed  int      `json:"completed"`
	Incomplete []string `json:"incomplete,omitempty"`
}

func (c ChecklistReport) AllCompleted() bool {
	return c.Completed == c.Total
}

// SuccessRate is 1 for an empty checklist
func (c ChecklistReport) SuccessRate() float64 {
	if c.Total == 0 {
		return 1
	}
	return float64(c.Completed) / float64(c.Total)
}

type taskItem struct {
	text    string
	checked bool
}

// taskItems collects the GFM task list items of a markdown document
func taskItems(markdown string) []taskItem {
	src := []byte(markdown)
	doc := gfm.Parser().Parse(text.NewReader(src))

	var items []taskItem
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != extast.KindTaskCheckBox {
			return ast.WalkContinue, nil
		}
		box := n.(*extast.TaskCheckBox)
		var b strings.Builder
		for sib := box.NextSibling(); sib != nil; sib = sib.NextSibling() {
			b.WriteString(inlineText(sib, src))
		}
		items = append(items, taskItem{text: b.String(), checked: box.IsChecked})
		return ast.WalkSkipChildren, nil
	})
	return items
}

// inlineText flattens the text of an inline subtree
func inlineText(n ast.Node, src []byte) string {
	switch t := n.(type) {
	case *ast.Text:
		s := string(t.Segment.Value(src))
		if t.SoftLineBreak() || t.HardLineBreak() {
			s += " "
		}
		return s
	case *ast.String:
		return string(t.Value)
	}
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		b.WriteString(inlineText(c, src))
	}
	return b.String()
}

func normalizeItem(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// EvaluateChecklist matches checklist items against the checked task list
// items of the agent output. An item counts as completed when a checked
// task contains its text. Items the output never mentions count as
// incomplete.
func EvaluateChecklist(checklist []string, output string) ChecklistReport {
	report := ChecklistReport{Total: len(checklist)}
	if len(checklist) == 0 {
		return report
	}

	var checked []string
	for _, item := range taskItems(output) {
		if item.checked {
			if s := normalizeItem(item.text); s != "" {
				checked = append(checked, s)
			}
		}
	}

	for _, want := range checklist {
		w := normalizeItem(want)
		done := false
		for _, got := range checked {
			if strings.Contains(got, w) {
				done = true
				break
			}
		}
		if done {
			report.Completed++
		} else {
			report.Incomplete = append(report.Incomplete, want)
		}
	}
	return report
}

// AggregateSummary rolls checklist results up across a round
type AggregateSummary struct {
	TotalAgents      int `json:"total_agents"`
	SuccessfulAgents int `json:"successful_agents"`
	TotalItems       int `json:"total_items"`
	CompletedItems   int `json:"completed_items"`
}

func (a AggregateSummary) AgentSuccessRate() float64 {
	if a.TotalAgents == 0 {
		return 1
	}
	return float64(a.SuccessfulAgents) / float64(a.TotalAgents)
}

func (a AggregateSummary) ChecklistCompletionRate() float64 {
	if a.TotalItems == 0 {
		return 1
	}
	return float64(a.CompletedItems) / float64(a.TotalItems)
}
