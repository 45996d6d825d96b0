// Package hashvec is a local embedding provider: a feature-hashed bag of
// Porter2 stems. It needs no network and returns identical vectors for
// identical text, which makes it suitable for offline runs and tests.
package hashvec

import (
	"context"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/surgebase/porter2"

	"github.com/kailas-cloud/lostmatch/internal/domain"
)

// DefaultDimensions is used when the configured dimension is not positive.
const DefaultDimensions = 512

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "at": {}, "by": {}, "for": {},
	"from": {}, "i": {}, "in": {}, "is": {}, "it": {}, "my": {}, "near": {},
	"of": {}, "on": {}, "or": {}, "the": {}, "to": {}, "was": {}, "with": {},
}

// Encoder implements domain.Embedder and domain.BatchEmbedder.
type Encoder struct {
	dim int
}

// New creates an encoder producing vectors of the given dimension.
func New(dim int) *Encoder {
	if dim <= 0 {
		dim = DefaultDimensions
	}
	return &Encoder{dim: dim}
}

// Dimensions returns the vector length.
func (e *Encoder) Dimensions() int { return e.dim }

// Embed hashes each stem into a bucket and counts occurrences.
func (e *Encoder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.EmbeddingResult{}, err
	}
	vec, tokens := e.encode(text)
	return domain.EmbeddingResult{Embedding: vec, PromptTokens: tokens, TotalTokens: tokens}, nil
}

// BatchEmbed encodes texts in order.
func (e *Encoder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		vec, tokens := e.encode(text)
		out.Embeddings[i] = vec
		out.PromptTokens += tokens
		out.TotalTokens += tokens
	}
	return out, nil
}

// HealthCheck always succeeds.
func (e *Encoder) HealthCheck(context.Context) error { return nil }

func (e *Encoder) encode(text string) ([]float32, int) {
	vec := make([]float32, e.dim)
	terms := Terms(text)
	for _, term := range terms {
		vec[xxhash.Sum64String(term)%uint64(e.dim)]++
	}
	return vec, len(terms)
}

// Terms lowercases text, splits it on anything that is not a letter or
// digit, drops stopwords and stems the rest.
func Terms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if _, skip := stopwords[w]; skip {
			continue
		}
		terms = append(terms, porter2.Stem(w))
	}
	return terms
}
