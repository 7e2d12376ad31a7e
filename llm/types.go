package llm

import "context"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// DefaultMaxTokens caps a reply when the request leaves MaxTokens unset
const DefaultMaxTokens = 4096

// Finish reasons, normalized across providers
const (
	FinishStop         = "stop"
	FinishStopSequence = "stop_sequence"
	FinishLength       = "length"
	FinishOther        = "other"
)

// Message is one turn of a conversation
type Message struct {
	Role    Role
	Content string
}

// NewTextMessage creates a simple text-only message
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: text}
}

// StreamChunk is one piece of a streamed reply. The final chunk has Done
// set and carries Usage and FinishReason, or Error.
type StreamChunk struct {
	Content      string
	Done         bool
	Error        error
	Usage        *Usage
	FinishReason string
}

type ChatRequest struct {
	Model         string
	Messages      []Message
	MaxTokens     int
	Temperature   float64
	StopSequences []string
}

func (r *ChatRequest) maxTokens() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return DefaultMaxTokens
}

// systemText joins the system messages of the request
func (r *ChatRequest) systemText() string {
	var out string
	for _, m := range r.Messages {
		if m.Role != RoleSystem {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += m.Content
	}
	return out
}

type ChatResponse struct {
	ID           string
	Content      string
	FinishReason string
	Usage        Usage
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input plus output tokens
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

type Provider interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	ChatStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)
}

// emit sends a chunk unless the caller has gone away. Stream goroutines
// stop as soon as it returns false.
func emit(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
