package assistant

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// CompletionStream yields one generation's incremental output.
type CompletionStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// Backend is the language-model swap point. Production wires OpenAI;
// tests wire a scripted stand-in.
type Backend interface {
	StreamCompletion(ctx context.Context, req openai.ChatCompletionRequest) (CompletionStream, error)
}

type OpenAIBackend struct {
	client *openai.Client
}

func NewOpenAIBackend(apiKey string) *OpenAIBackend {
	return &OpenAIBackend{client: openai.NewClient(apiKey)}
}

func (b *OpenAIBackend) StreamCompletion(ctx context.Context, req openai.ChatCompletionRequest) (CompletionStream, error) {
	return b.client.CreateChatCompletionStream(ctx, req)
}
