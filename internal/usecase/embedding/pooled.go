package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/kailas-cloud/lostmatch/internal/domain"
)

// PooledEmbedder gives single-text embedders a concurrent BatchEmbed.
// Each text is embedded on a shared ants worker pool.
type PooledEmbedder struct {
	inner domain.Embedder
	pool  *ants.Pool
}

// NewPooledEmbedder creates a pool of size workers. Call Release when done.
func NewPooledEmbedder(inner domain.Embedder, size int) (*PooledEmbedder, error) {
	if size < 1 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	return &PooledEmbedder{inner: inner, pool: pool}, nil
}

// Embed delegates to the inner embedder.
func (p *PooledEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return p.inner.Embed(ctx, text)
}

// BatchEmbed embeds texts concurrently and returns vectors in input order.
// On failure the error of the lowest failing index is returned.
func (p *PooledEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	results := make([]domain.EmbeddingResult, len(texts))
	errs := make([]error, len(texts))

	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		if err := p.pool.Submit(func() {
			defer wg.Done()
			results[i], errs[i] = p.inner.Embed(ctx, text)
		}); err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("submit embed task: %w", err)
		}
	}
	wg.Wait()

	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i := range texts {
		if errs[i] != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("pooled embed [%d]: %w", i, errs[i])
		}
		out.Embeddings[i] = results[i].Embedding
		out.PromptTokens += results[i].PromptTokens
		out.TotalTokens += results[i].TotalTokens
	}
	return out, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (p *PooledEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// Release stops the pool workers.
func (p *PooledEmbedder) Release() {
	p.pool.Release()
}
