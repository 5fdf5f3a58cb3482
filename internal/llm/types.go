// Package llm wraps hosted and local chat-completion APIs behind one Provider.
package llm

import (
	"context"
	"errors"
)

const (
	ProviderOpenAI = "openai"
	ProviderCompat = "compat"
	ProviderOllama = "ollama"
)

// Message represents a chat message
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request is one chat completion call.
type Request struct {
	Messages    []Message
	Model       string
	Temperature *float64
	TopP        *float64
}

// Result is the first choice of a completion.
type Result struct {
	Message  Message
	Model    string
	Provider string
	Cached   bool
	Usage    Usage
}

// Provider completes a conversation.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Result, error)
}

var (
	// ErrNoChoices indicates a completion response without any choice.
	ErrNoChoices = errors.New("llm returned no choices")
	// ErrUnknownProvider indicates an unsupported provider name in config.
	ErrUnknownProvider = errors.New("unknown llm provider")
	// ErrMissingAPIKey indicates a hosted provider configured without a key.
	ErrMissingAPIKey = errors.New("llm api key is required")
)

// Float returns a pointer to v for the optional sampling fields.
func Float(v float64) *float64 { return &v }
