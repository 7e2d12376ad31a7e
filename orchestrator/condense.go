package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Summarizer condenses an agent transcript into markdown
type Summarizer interface {
	Summarize(ctx context.Context, agentID, transcript string) (string, error)
}

// MarkdownCondenser summarizes without a model call: it keeps headings,
// list items and the lead sentence of each paragraph, and drops code blocks.
type MarkdownCondenser struct {
	// MaxListItems caps the items kept per list (0 keeps all)
	MaxListItems int
}

var errEmptySummary = errors.New("nothing to keep after condensing")

func (c MarkdownCondenser) Summarize(ctx context.Context, agentID, transcript string) (string, error) {
	src := []byte(transcript)
	doc := gfm.Parser().Parse(text.NewReader(src))

	var lines []string
	omitted := 0
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		switch b := n.(type) {
		case *ast.Heading:
			lines = append(lines, strings.Repeat("#", b.Level)+" "+inlineText(b, src))
		case *ast.List:
			lines = append(lines, c.condenseList(b, src, 0)...)
		case *ast.Paragraph:
			if lead := leadSentence(inlineText(b, src)); lead != "" {
				lines = append(lines, lead)
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			omitted++
		case *extast.Table:
			lines = append(lines, "_(table omitted)_")
		}
	}
	if omitted > 0 {
		lines = append(lines, fmt.Sprintf("_(%d code block(s) omitted)_", omitted))
	}
	if len(lines) == 0 {
		return "", errEmptySummary
	}

	header := fmt.Sprintf("_Summary of agent %s output (%d chars condensed)._", ShortID(agentID), len(transcript))
	return header + "\n\n" + strings.Join(lines, "\n"), nil
}

func (c MarkdownCondenser) condenseList(list *ast.List, src []byte, depth int) []string {
	var out []string
	indent := strings.Repeat("  ", depth)
	kept := 0
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		if c.MaxListItems > 0 && kept == c.MaxListItems {
			out = append(out, indent+"- …")
			break
		}
		var label string
		for child := item.FirstChild(); child != nil; child = child.NextSibling() {
			if nested, ok := child.(*ast.List); ok {
				out = append(out, indent+"- "+label)
				label = ""
				out = append(out, c.condenseList(nested, src, depth+1)...)
				continue
			}
			label += listLabel(child, src)
		}
		if label != "" {
			out = append(out, indent+"- "+label)
		}
		kept++
	}
	return out
}

// listLabel renders an item's text block, keeping task checkboxes
func listLabel(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if box, ok := c.(*extast.TaskCheckBox); ok {
			if box.IsChecked {
				b.WriteString("[x] ")
			} else {
				b.WriteString("[ ] ")
			}
			continue
		}
		b.WriteString(inlineText(c, src))
	}
	return strings.TrimSpace(b.String())
}

func leadSentence(p string) string {
	p = strings.TrimSpace(p)
	for i, r := range p {
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(p) || p[i+1] == ' ') {
			return p[:i+1]
		}
	}
	return p
}
