package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
)

// CompatProvider talks to OpenAI-compatible endpoints (vLLM, LM Studio, Azure
// style gateways) that need a custom base URL.
type CompatProvider struct {
	client *goopenai.Client
}

func NewCompatProvider(apiKey, baseURL string, timeout time.Duration) (*CompatProvider, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("compat provider requires base_url")
	}
	config := goopenai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimRight(baseURL, "/")
	if timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &CompatProvider{client: goopenai.NewClientWithConfig(config)}, nil
}

func (p *CompatProvider) Name() string { return ProviderCompat }

func (p *CompatProvider) Complete(ctx context.Context, req Request) (Result, error) {
	chatReq := goopenai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: make([]goopenai.ChatCompletionMessage, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, goopenai.ChatCompletionMessage{Role: compatRole(m.Role), Content: m.Content})
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		chatReq.TopP = float32(*req.TopP)
	}
	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return Result{}, fmt.Errorf("compat chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, ErrNoChoices
	}
	return Result{
		Message:  Message{Role: "assistant", Content: resp.Choices[0].Message.Content},
		Model:    resp.Model,
		Provider: ProviderCompat,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func compatRole(role string) string {
	switch role {
	case "system":
		return goopenai.ChatMessageRoleSystem
	case "assistant":
		return goopenai.ChatMessageRoleAssistant
	default:
		return goopenai.ChatMessageRoleUser
	}
}
