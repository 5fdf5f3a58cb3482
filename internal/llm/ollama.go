package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultOllamaURL = "http://127.0.0.1:11434"

// OllamaProvider calls a local Ollama server's /api/chat endpoint.
type OllamaProvider struct {
	client *resty.Client
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
	Error           string  `json:"error"`
}

func NewOllamaProvider(baseURL string, maxRetries int, timeout time.Duration) *OllamaProvider {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(maxRetries).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &OllamaProvider{client: client}
}

func (p *OllamaProvider) Name() string { return ProviderOllama }

func (p *OllamaProvider) Complete(ctx context.Context, req Request) (Result, error) {
	body := ollamaChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Options:  map[string]any{},
	}
	if req.Temperature != nil {
		body.Options["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body.Options["top_p"] = *req.TopP
	}
	var out ollamaChatResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/api/chat")
	if err != nil {
		return Result{}, fmt.Errorf("ollama chat: %w", err)
	}
	if resp.IsError() {
		return Result{}, fmt.Errorf("ollama chat: status %d: %s", resp.StatusCode(), out.Error)
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		return Result{}, ErrNoChoices
	}
	return Result{
		Message:  Message{Role: "assistant", Content: out.Message.Content},
		Model:    out.Model,
		Provider: ProviderOllama,
		Usage: Usage{
			PromptTokens:     out.PromptEvalCount,
			CompletionTokens: out.EvalCount,
			TotalTokens:      out.PromptEvalCount + out.EvalCount,
		},
	}, nil
}
