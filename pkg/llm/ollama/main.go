package ollama

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cadencevoice/cadence/pkg/Logger"
	"github.com/cadencevoice/cadence/pkg/llm"
	"github.com/ollama/ollama/api"
	"github.com/presbrey/ollamafarm"
)

// Provider wraps an ollamafarm so a judge call survives a single backend
// going offline.
type Provider struct {
	farm   *ollamafarm.Farm
	logger *Logger.Logger
}

func NewProvider(urls []string, logger *Logger.Logger) *Provider {
	farm := ollamafarm.New()
	for _, u := range urls {
		if err := farm.RegisterURL(u, nil); err != nil {
			logger.Warnf("ollama server registration failed for %s: %v", u, err)
		}
	}
	return &Provider{farm: farm, logger: logger}
}

func (p *Provider) Chat(ctx context.Context, req api.ChatRequest, fn api.ChatResponseFunc) error {
	ollama := p.farm.First(&ollamafarm.Where{Offline: false})
	if ollama == nil {
		return fmt.Errorf("no ollama server online for model %v", req.Model)
	}
	return ollama.Client().Chat(ctx, &req, fn)
}

type ollamaAdapter struct {
	provider     *Provider
	defaultModel string
}

// New builds an adapter over a farm of ollama servers.
func New(provider *Provider, defaultModel string) llm.Adapter {
	return &ollamaAdapter{provider: provider, defaultModel: defaultModel}
}

// Complete implements llm.Adapter.
func (o *ollamaAdapter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	model := o.defaultModel
	if req.Model.Name != "" {
		model = fmt.Sprintf("%v%v", req.Model.Name, req.Model.Version)
	}

	stream := false
	chatReq := api.ChatRequest{
		Model:    model,
		Messages: convertMsgs(req.Msgs),
		Stream:   &stream,
	}
	if req.MaxTokens > 0 {
		chatReq.Options = map[string]any{"num_predict": int(req.MaxTokens)}
	}

	var sb strings.Builder
	handler := func(cr api.ChatResponse) error {
		sb.WriteString(cr.Message.Content)
		return nil
	}

	if err := o.provider.Chat(ctx, chatReq, handler); err != nil {
		return nil, fmt.Errorf("ollama completion failed: %w", err)
	}

	return &llm.CompletionResult{
		Content:   sb.String(),
		Model:     model,
		CreatedAt: time.Now(),
	}, nil
}

func convertMsgs(msgs []llm.Message) []api.Message {
	converted := make([]api.Message, 0, len(msgs))
	for _, msg := range msgs {
		converted = append(converted, api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return converted
}
