package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var DefaultModel = openai.ChatModelGPT4o

// OpenAI generates replies through the OpenAI chat completions API.
type OpenAI struct {
	client    openai.Client
	model     openai.ChatModel
	maxTokens int
	options   []option.RequestOption
}

type OpenAIOption func(*OpenAI)

func WithAPIKey(apiKey string) OpenAIOption {
	return func(p *OpenAI) {
		p.options = append(p.options, option.WithAPIKey(apiKey))
	}
}

func WithModel(model string) OpenAIOption {
	return func(p *OpenAI) {
		p.model = openai.ChatModel(model)
	}
}

func WithMaxTokens(n int) OpenAIOption {
	return func(p *OpenAI) {
		p.maxTokens = n
	}
}

func NewOpenAI(opts ...OpenAIOption) *OpenAI {
	p := &OpenAI{
		model:     DefaultModel,
		maxTokens: 1024,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client = openai.NewClient(p.options...)
	return p
}

var _ Generator = &OpenAI{}

func (p *OpenAI) Generate(ctx context.Context, system string, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:               p.model,
		MaxCompletionTokens: openai.Int(int64(p.maxTokens)),
	}
	if system != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(system))
	}
	for _, m := range messages {
		switch m.Role {
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
