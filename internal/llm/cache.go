package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/memohai/docdesk/internal/metrics"
)

// CachedProvider answers identical requests from memory, evicting the least
// recently used entry once size is reached.
type CachedProvider struct {
	inner   Provider
	entries *lru.Cache[string, Result]
}

func NewCachedProvider(inner Provider, size int) *CachedProvider {
	if size <= 0 {
		size = 1
	}
	// lru.New only fails for a non-positive size.
	entries, _ := lru.New[string, Result](size)
	return &CachedProvider{
		inner:   inner,
		entries: entries,
	}
}

func (p *CachedProvider) Name() string { return p.inner.Name() }

func (p *CachedProvider) Complete(ctx context.Context, req Request) (Result, error) {
	key := cacheKey(req)
	if res, ok := p.entries.Get(key); ok {
		metrics.RecordLLMCall(p.inner.Name(), "cached", 0)
		res.Cached = true
		return res, nil
	}

	res, err := p.inner.Complete(ctx, req)
	if err != nil {
		return Result{}, err
	}
	p.entries.Add(key, res)
	return res, nil
}

// Len reports the number of cached entries.
func (p *CachedProvider) Len() int {
	return p.entries.Len()
}

func cacheKey(req Request) string {
	payload, _ := json.Marshal(struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		Temperature *float64  `json:"temperature"`
		TopP        *float64  `json:"top_p"`
	}{req.Model, req.Messages, req.Temperature, req.TopP})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
