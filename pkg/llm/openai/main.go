package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/cadencevoice/cadence/pkg/llm"
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openAIAdapter struct {
	client       oai.Client
	defaultModel string
}

// New builds an adapter over the OpenAI chat completions API.
func New(apiKey, defaultModel string) llm.Adapter {
	return &openAIAdapter{
		client:       oai.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
	}
}

// Complete implements llm.Adapter.
func (o *openAIAdapter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	convertedMsgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Msgs))
	for _, msg := range req.Msgs {
		convertedMsgs = append(convertedMsgs, convertMsg(msg))
	}

	model := o.defaultModel
	if req.Model.Name != "" {
		model = req.Model.Name + req.Model.Version
	}

	params := oai.ChatCompletionNewParams{
		Messages: convertedMsgs,
		Model:    oai.ChatModel(model),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = oai.Int(req.MaxTokens)
	}

	chatCompletion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai completion failed: %w", err)
	}
	if len(chatCompletion.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	return &llm.CompletionResult{
		Content:   chatCompletion.Choices[0].Message.Content,
		Model:     model,
		CreatedAt: time.Now(),
	}, nil
}

func convertMsg(msg llm.Message) oai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case llm.ASSISTANT:
		return oai.AssistantMessage(msg.Content)
	case llm.SYSTEM:
		return oai.SystemMessage(msg.Content)
	default:
		return oai.UserMessage(msg.Content)
	}
}
