package orchestrator

import (
	"fmt"
	"strings"
)

const (
	// DefaultOutputTokenLimit bounds the body of a delivered result
	DefaultOutputTokenLimit = 5000

	// TruncationMarker is appended to a result cut at the output limit
	TruncationMarker = "[Output truncated at 5k token limit]"

	charsPerToken = 4
)

func estimateTokens(s string) int {
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// Truncate limits content to limitTokens, cutting on line boundaries
func Truncate(content string, limitTokens int) (string, bool) {
	if limitTokens <= 0 || estimateTokens(content) <= limitTokens {
		return content, false
	}

	remaining := limitTokens * charsPerToken
	var b strings.Builder
	used := 0
	for _, line := range strings.Split(content, "\n") {
		if used+len(line)+1 > remaining {
			break
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		used += len(line) + 1
	}
	b.WriteString("\n\n")
	b.WriteString(TruncationMarker)
	return b.String(), true
}

// StatusIcon is the heading marker for a status
func StatusIcon(s Status) string {
	switch s {
	case StatusCompleted:
		return "✅"
	case StatusFailed:
		return "❌"
	case StatusCancelled:
		return "⚠️"
	case StatusTimedOut:
		return "⏱️"
	default:
		return "🔄"
	}
}

// Normalize renders a terminal agent and its log as a markdown result
func Normalize(rec AgentRecord, body string, limitTokens int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Subagent %s (%s) %s\n", rec.DisplayName, ShortID(rec.AgentID), StatusIcon(rec.Status))
	if rec.Purpose != "" {
		fmt.Fprintf(&b, "\n**Purpose:** %s\n", rec.Purpose)
	}
	b.WriteByte('\n')

	body = strings.TrimSpace(body)
	switch {
	case body != "":
		out, _ := Truncate(body, limitTokens)
		b.WriteString(out)
		if rec.Status == StatusFailed && rec.Detail != "" {
			fmt.Fprintf(&b, "\n\n**Error:** %s", rec.Detail)
		}
	case rec.Status == StatusFailed:
		fmt.Fprintf(&b, "**Error:** %s", orDefault(rec.Detail, "agent failed without output"))
	case rec.Status == StatusTimedOut:
		fmt.Fprintf(&b, "_No result: %s_", orDefault(rec.Detail, "timed out"))
	case rec.Status == StatusCancelled:
		fmt.Fprintf(&b, "_Cancelled: %s. Partial output was discarded._", orDefault(rec.Detail, "cancelled"))
	default:
		b.WriteString("_No output._")
	}
	b.WriteByte('\n')
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
