package domain

import (
	"context"
	"sync"
)

type tokenUsageKey struct{}

// TokenUsage collects backend token usage for a single request.
// The handler puts it into the context, scorers add to it, and the handler
// reads it back for response headers. Safe for concurrent use.
type TokenUsage struct {
	mu               sync.Mutex
	embeddingTokens  int
	generationTokens int
	used             bool
}

// NewContextWithUsage returns a context carrying a fresh usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *TokenUsage) {
	u := &TokenUsage{}
	return context.WithValue(ctx, tokenUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *TokenUsage {
	u, _ := ctx.Value(tokenUsageKey{}).(*TokenUsage)
	return u
}

// AddEmbeddingTokens records embedding tokens. A nil receiver is a no-op.
func (u *TokenUsage) AddEmbeddingTokens(n int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.embeddingTokens += n
	u.used = true
	u.mu.Unlock()
}

// AddGenerationTokens records generation tokens. A nil receiver is a no-op.
func (u *TokenUsage) AddGenerationTokens(n int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.generationTokens += n
	u.used = true
	u.mu.Unlock()
}

// Snapshot returns embedding tokens, generation tokens and whether any backend was called.
func (u *TokenUsage) Snapshot() (embedding, generation int, used bool) {
	if u == nil {
		return 0, 0, false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.embeddingTokens, u.generationTokens, u.used
}
