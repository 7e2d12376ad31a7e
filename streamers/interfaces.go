package streamers

import "conductor/orchestrator"

// ChatHandler defines the interface for handling chat I/O
// Different implementations can handle stdout/stdin, SSE, websocket, etc.
type ChatHandler interface {
	// Welcome displays the initial welcome message when chat starts
	Welcome(profileName string, modelName string)

	// AwaitClientAnswer prompts for and reads user input, returns the input and any error
	AwaitClientAnswer() (string, error)

	// Goodbye displays the farewell message when chat ends
	Goodbye()

	// Error displays an error message
	Error(err error)

	// Thinking is called when the model starts processing
	Thinking()

	// CallingTool is called when the model invokes a tool
	CallingTool(toolName string, payload string)

	// ToolComplete is called when a tool finishes execution
	ToolComplete(toolName string)

	// PublishReasoningChunk is called for each chunk of the REASONING as it streams
	PublishReasoningChunk(chunk string)

	// FinishReasoning is called when the REASONING block is complete
	FinishReasoning()

	// PublishAnswerChunk is called for each chunk of the ANSWER as it streams
	PublishAnswerChunk(chunk string)

	// FinishAnswer is called when the answer is complete (to print newlines, stop spinner, etc)
	FinishAnswer()
}

// EventHandler receives orchestrator events. Implementations are called
// from several goroutines.
type EventHandler interface {
	HandleEvent(e orchestrator.Event)
}

// MultiEventHandler fans one event out to several handlers, in order
type MultiEventHandler []EventHandler

func (m MultiEventHandler) HandleEvent(e orchestrator.Event) {
	for _, h := range m {
		if h != nil {
			h.HandleEvent(e)
		}
	}
}

// NopChatHandler discards everything. Child conversations run with it.
type NopChatHandler struct{}

func (NopChatHandler) Welcome(string, string)             {}
func (NopChatHandler) AwaitClientAnswer() (string, error) { return "", nil }
func (NopChatHandler) Goodbye()                           {}
func (NopChatHandler) Error(error)                        {}
func (NopChatHandler) Thinking()                          {}
func (NopChatHandler) CallingTool(string, string)         {}
func (NopChatHandler) ToolComplete(string)                {}
func (NopChatHandler) PublishReasoningChunk(string)       {}
func (NopChatHandler) FinishReasoning()                   {}
func (NopChatHandler) PublishAnswerChunk(string)          {}
func (NopChatHandler) FinishAnswer()                      {}
