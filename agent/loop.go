package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"conductor/aitools"
	"conductor/llm"
	"conductor/streamers"
)

// stopSequence ends a model message after a tool call or an answer
const stopSequence = "___STOP___"

// ErrMaxSteps is returned when a conversation keeps calling tools past its step bound
var ErrMaxSteps = errors.New("step limit reached without a final answer")

// llmSession defines the session operations needed by the turn loop
type llmSession interface {
	SendStream(ctx context.Context, userMessage string, onChunk func(llm.StreamChunk)) (*llm.ChatResponse, error)
	ContextTokens() int
}

// turnResult describes one completed turn
type turnResult struct {
	Answer    string
	Steps     int
	ToolCalls int
	Usage     llm.Usage
}

// turnLoop handles a conversation turn, including any tool calls
type turnLoop struct {
	session  llmSession
	streamer streamers.ChatHandler
	tools    map[string]aitools.Tool

	// maxSteps bounds model calls per turn, 0 for no bound
	maxSteps int

	// afterTool runs at every tool-call boundary. Its return value is
	// appended to the observation.
	afterTool func(toolName string) string

	// finished lets a tool end the turn early (e.g. a final progress report)
	finished func() bool
}

// run processes input until the model answers without calling a tool
func (l *turnLoop) run(ctx context.Context, input string) (turnResult, error) {
	var res turnResult
	current := input

	for {
		if l.maxSteps > 0 && res.Steps == l.maxSteps {
			return res, ErrMaxSteps
		}
		res.Steps++

		parser := NewMessageParser(l.streamer)
		resp, err := l.session.SendStream(ctx, current, func(chunk llm.StreamChunk) {
			if chunk.Content != "" {
				parser.ProcessChunk(chunk.Content)
			}
		})
		parser.Finish()

		if err != nil {
			l.streamer.Error(err)
			return res, err
		}
		res.Usage.InputTokens += resp.Usage.InputTokens
		res.Usage.OutputTokens += resp.Usage.OutputTokens

		if answer := parser.GetAnswer(); answer != "" {
			res.Answer = answer
		}

		action := parser.GetAction()
		if action == "" {
			if res.Answer == "" {
				// untagged reply: take it as the answer
				if plain := strings.TrimSpace(strings.TrimSuffix(resp.Content, stopSequence)); plain != "" && !strings.Contains(plain, "<") {
					l.streamer.PublishAnswerChunk(plain)
					l.streamer.FinishAnswer()
					res.Answer = plain
				}
			}
			return res, nil
		}

		actionInput := parser.GetActionInput()
		l.streamer.CallingTool(action, actionInput)

		var result string
		if tool, ok := l.tools[action]; ok {
			result = tool.Call(ctx, actionInput)
		} else {
			result = fmt.Sprintf("Error: Tool '%s' not found", action)
		}
		res.ToolCalls++
		l.streamer.ToolComplete(action)

		current = fmt.Sprintf("<OBSERVATION>\n%s\n</OBSERVATION>", result)
		if l.afterTool != nil {
			if extra := l.afterTool(action); extra != "" {
				current += "\n" + extra
			}
		}

		if err := ctx.Err(); err != nil {
			return res, err
		}
		if l.finished != nil && l.finished() {
			return res, nil
		}
	}
}
