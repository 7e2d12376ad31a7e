package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GeminiProvider struct {
	client *genai.Client
}

func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// startChat configures a model for the request and loads every turn but
// the last into the chat history. The last turn is returned for sending.
func (p *GeminiProvider) startChat(req *ChatRequest) (*genai.ChatSession, []genai.Part) {
	model := p.client.GenerativeModel(req.Model)
	model.SetMaxOutputTokens(int32(req.maxTokens()))
	if req.Temperature > 0 {
		model.SetTemperature(float32(req.Temperature))
	}
	if len(req.StopSequences) > 0 {
		model.StopSequences = req.StopSequences
	}
	if system := req.systemText(); system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	history := geminiHistory(req.Messages)
	last := []genai.Part{genai.Text("")}
	if n := len(history); n > 0 && history[n-1].Role == "user" {
		last = history[n-1].Parts
		history = history[:n-1]
	}

	chat := model.StartChat()
	chat.History = history
	return chat, last
}

func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	chat, last := p.startChat(req)
	resp, err := chat.SendMessage(ctx, last...)
	if err != nil {
		return nil, err
	}

	return &ChatResponse{
		ID:           uuid.New().String(),
		Content:      geminiText(resp),
		FinishReason: geminiFinish(resp),
		Usage:        geminiUsage(resp),
	}, nil
}

func (p *GeminiProvider) ChatStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	chat, last := p.startChat(req)
	iter := chat.SendMessageStream(ctx, last...)
	chunks := make(chan StreamChunk)

	go func() {
		defer close(chunks)

		var usage Usage
		var finish string
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				emit(ctx, chunks, StreamChunk{Done: true, Usage: &usage, FinishReason: finish})
				return
			}
			if err != nil {
				emit(ctx, chunks, StreamChunk{Error: err, Done: true})
				return
			}
			if u := geminiUsage(resp); u.Total() > 0 {
				usage = u
			}
			if f := geminiFinish(resp); f != "" {
				finish = f
			}
			if text := geminiText(resp); text != "" {
				if !emit(ctx, chunks, StreamChunk{Content: text}) {
					return
				}
			}
		}
	}()

	return chunks, nil
}

// geminiHistory converts non-system turns, merging consecutive turns of
// the same role into one content
func geminiHistory(messages []Message) []*genai.Content {
	var out []*genai.Content
	for _, m := range messages {
		var role string
		switch m.Role {
		case RoleUser:
			role = "user"
		case RoleAssistant:
			role = "model"
		default:
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, genai.Text(m.Content))
			continue
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return out
}

func geminiText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return b.String()
}

func geminiFinish(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	switch resp.Candidates[0].FinishReason {
	case genai.FinishReasonUnspecified:
		return ""
	case genai.FinishReasonStop:
		return FinishStop
	case genai.FinishReasonMaxTokens:
		return FinishLength
	default:
		return FinishOther
	}
}

func geminiUsage(resp *genai.GenerateContentResponse) Usage {
	if resp.UsageMetadata == nil {
		return Usage{}
	}
	return Usage{
		InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
		OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
	}
}
