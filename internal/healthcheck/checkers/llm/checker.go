package llmchecker

import (
	"context"
	"strings"

	"github.com/memohai/docdesk/internal/config"
	"github.com/memohai/docdesk/internal/healthcheck"
	"github.com/memohai/docdesk/internal/llm"
)

const checkTypeLLM = "llm.config"

// Checker reports whether the language model provider is usable as configured.
// It does not call the provider.
type Checker struct {
	cfg config.LLMConfig
}

func NewChecker(cfg config.LLMConfig) *Checker {
	return &Checker{cfg: cfg}
}

func (c *Checker) ListChecks(_ context.Context) []healthcheck.CheckResult {
	provider := strings.ToLower(strings.TrimSpace(c.cfg.Provider))
	item := healthcheck.CheckResult{
		ID:       checkTypeLLM,
		Type:     checkTypeLLM,
		Title:    "Language model",
		Subtitle: provider,
		Status:   healthcheck.StatusOK,
		Summary:  "Language model is configured.",
		Metadata: map[string]any{"model": c.cfg.Model},
	}
	switch provider {
	case "", llm.ProviderOpenAI, llm.ProviderCompat:
		if strings.TrimSpace(c.cfg.APIKey) == "" {
			item.Status = healthcheck.StatusError
			item.Summary = "Language model API key is missing."
		}
	case llm.ProviderOllama:
		if strings.TrimSpace(c.cfg.BaseURL) == "" {
			item.Status = healthcheck.StatusWarn
			item.Summary = "Ollama base URL is not set, the local default is used."
		}
	default:
		item.Status = healthcheck.StatusError
		item.Summary = "Language model provider is unknown."
	}
	if strings.TrimSpace(c.cfg.Model) == "" {
		item.Status = healthcheck.StatusError
		item.Detail = "model is empty"
	}
	return []healthcheck.CheckResult{item}
}
