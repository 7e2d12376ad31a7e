package llm

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

type Session struct {
	provider      Provider
	model         string
	systemPrompts []string
	messages      []Message
	stopSequences []string
	maxTokens     int
	logger        hclog.Logger

	// lastUsage is the provider-reported usage of the most recent exchange
	lastUsage Usage
}

func NewSession(provider Provider, model string, systemPrompts ...string) *Session {
	return &Session{
		provider:      provider,
		model:         model,
		systemPrompts: systemPrompts,
		messages:      []Message{},
		logger:        hclog.NewNullLogger(),
	}
}

// SetLogger routes prompt and response traces to logger
func (s *Session) SetLogger(logger hclog.Logger) {
	s.logger = logger
}

func (s *Session) AddSystemPrompt(prompt string) {
	s.systemPrompts = append(s.systemPrompts, prompt)
	s.logger.Trace("system prompt added", "index", len(s.systemPrompts), "chars", len(prompt))
}

func (s *Session) SetStopSequences(sequences []string) {
	s.stopSequences = sequences
}

func (s *Session) SetMaxTokens(n int) {
	s.maxTokens = n
}

func (s *Session) GetHistory() []Message {
	return s.messages
}

func (s *Session) GetSystemPrompts() []string {
	return s.systemPrompts
}

// AppendMessage adds a message to the history without calling the provider.
// Used to place delegated results in the conversation ahead of the next send.
func (s *Session) AppendMessage(msg Message) {
	s.messages = append(s.messages, msg)
}

// ContextTokens reports how much of the context window the session occupies.
// The provider count from the last exchange is preferred; messages appended
// since then are estimated.
func (s *Session) ContextTokens() int {
	estimate := EstimateMessages(s.messages)
	for _, sp := range s.systemPrompts {
		estimate += EstimateTokens(sp)
	}
	if reported := s.lastUsage.Total(); reported > estimate {
		return reported
	}
	return estimate
}

func (s *Session) buildMessages(userMessage string) []Message {
	var msgs []Message

	for _, sp := range s.systemPrompts {
		msgs = append(msgs, Message{Role: RoleSystem, Content: sp})
	}

	msgs = append(msgs, s.messages...)
	msgs = append(msgs, NewTextMessage(RoleUser, userMessage))

	return msgs
}

func (s *Session) newRequest(userMessage string) *ChatRequest {
	return &ChatRequest{
		Model:         s.model,
		Messages:      s.buildMessages(userMessage),
		MaxTokens:     s.maxTokens,
		StopSequences: s.stopSequences,
	}
}

func (s *Session) Send(ctx context.Context, userMessage string) (*ChatResponse, error) {
	s.logger.Trace("user message", "content", userMessage)

	resp, err := s.provider.Chat(ctx, s.newRequest(userMessage))
	if err != nil {
		return nil, err
	}

	s.logger.Trace("llm response", "content", resp.Content)
	s.record(userMessage, resp)

	return resp, nil
}

func (s *Session) SendStream(ctx context.Context, userMessage string, onChunk func(StreamChunk)) (*ChatResponse, error) {
	s.logger.Trace("user message", "content", userMessage)

	stream, err := s.provider.ChatStream(ctx, s.newRequest(userMessage))
	if err != nil {
		return nil, err
	}

	var contentBuilder strings.Builder
	var usage *Usage
	var finish string

	for chunk := range stream {
		if chunk.Error != nil {
			return nil, chunk.Error
		}

		contentBuilder.WriteString(chunk.Content)

		if onChunk != nil {
			onChunk(chunk)
		}

		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}

	resp := &ChatResponse{
		ID:           uuid.New().String(),
		Content:      contentBuilder.String(),
		FinishReason: finish,
	}
	if usage != nil {
		resp.Usage = *usage
	}

	s.logger.Trace("llm response", "content", resp.Content)
	s.record(userMessage, resp)

	return resp, nil
}

func (s *Session) record(userMessage string, resp *ChatResponse) {
	if resp.FinishReason == FinishLength {
		s.logger.Warn("reply truncated at max tokens", "model", s.model, "max_tokens", s.maxTokens)
	}
	s.messages = append(s.messages, Message{Role: RoleUser, Content: userMessage})
	s.messages = append(s.messages, Message{Role: RoleAssistant, Content: resp.Content})
	if resp.Usage.Total() > 0 {
		s.lastUsage = resp.Usage
	}
}
