package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/docdesk/internal/config"
	"github.com/memohai/docdesk/internal/metrics"
)

// New builds the configured provider, wrapped with metrics and an optional cache.
func New(log *slog.Logger, cfg config.LLMConfig) (Provider, error) {
	if log == nil {
		log = slog.Default()
	}
	var (
		provider Provider
		err      error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		provider, err = NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.MaxRetries, cfg.RequestTimeout())
	case ProviderCompat:
		provider, err = NewCompatProvider(cfg.APIKey, cfg.BaseURL, cfg.RequestTimeout())
	case ProviderOllama:
		provider = NewOllamaProvider(cfg.BaseURL, cfg.MaxRetries, cfg.RequestTimeout())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s provider: %w", cfg.Provider, err)
	}
	log.Info("llm provider ready",
		slog.String("provider", provider.Name()),
		slog.String("model", cfg.Model),
		slog.Int("cache_size", cfg.CacheSize),
	)
	provider = &instrumented{inner: provider, logger: log.With(slog.String("service", "llm"))}
	if cfg.CacheSize > 0 {
		provider = NewCachedProvider(provider, cfg.CacheSize)
	}
	return provider, nil
}

type instrumented struct {
	inner  Provider
	logger *slog.Logger
}

func (p *instrumented) Name() string { return p.inner.Name() }

func (p *instrumented) Complete(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res, err := p.inner.Complete(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordLLMCall(p.inner.Name(), "error", elapsed)
		p.logger.Warn("completion failed",
			slog.String("provider", p.inner.Name()),
			slog.Duration("latency", elapsed),
			slog.Any("error", err),
		)
		return Result{}, err
	}
	metrics.RecordLLMCall(p.inner.Name(), "ok", elapsed)
	p.logger.Debug("completion done",
		slog.String("provider", p.inner.Name()),
		slog.String("model", res.Model),
		slog.Int("total_tokens", res.Usage.TotalTokens),
		slog.Duration("latency", elapsed),
	)
	return res, nil
}
