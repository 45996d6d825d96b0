// Package cosine scores candidates by cosine similarity of text embeddings.
package cosine

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lostmatch/internal/domain"
	"github.com/kailas-cloud/lostmatch/internal/domain/item"
	"github.com/kailas-cloud/lostmatch/internal/domain/match"
	"github.com/kailas-cloud/lostmatch/internal/domain/normalize"
)

// Scorer embeds the query once and every candidate text with the document embedder.
type Scorer struct {
	query  domain.Embedder
	doc    domain.Embedder
	logger *zap.Logger
}

// New creates a scorer. Query and document embedders may be the same instance.
func New(query, doc domain.Embedder, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{query: query, doc: doc, logger: logger}
}

// Score returns one similarity in [0,1] per candidate text, in input order.
// Any embedding failure is reported as domain.ErrScorerUnavailable.
func (s *Scorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return []float64{}, nil
	}

	q, err := s.query.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w: %w", domain.ErrScorerUnavailable, err)
	}

	docs, err := domain.EmbedAll(ctx, s.doc, texts)
	if err != nil {
		return nil, fmt.Errorf("embed candidates: %w: %w", domain.ErrScorerUnavailable, err)
	}
	if len(docs.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed candidates: got %d vectors for %d texts: %w",
			len(docs.Embeddings), len(texts), domain.ErrScorerUnavailable)
	}

	scores := make([]float64, len(texts))
	for i, vec := range docs.Embeddings {
		if len(vec) != len(q.Embedding) {
			s.logger.Warn("Embedding dimension mismatch",
				zap.Int("candidate", i),
				zap.Int("query_dims", len(q.Embedding)),
				zap.Int("candidate_dims", len(vec)),
			)
			continue
		}
		scores[i] = match.Clamp(Similarity(q.Embedding, vec))
	}
	return scores, nil
}

// Rank scores every record against the query. The result is unordered.
func (s *Scorer) Rank(ctx context.Context, query string, candidates []item.Record) ([]match.CandidateScore, error) {
	scores, err := s.Score(ctx, query, normalize.Records(candidates))
	if err != nil {
		return nil, err
	}
	out := make([]match.CandidateScore, len(candidates))
	for i, r := range candidates {
		out[i] = match.NewCandidateScore(r, scores[i])
	}
	return out, nil
}

// Similarity is dot(a,b) / (|a|*|b|) accumulated in float64.
// Zero-norm or differently sized vectors yield 0.
func Similarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
