package match

import (
	"context"

	"github.com/kailas-cloud/lostmatch/internal/domain/item"
	dommatch "github.com/kailas-cloud/lostmatch/internal/domain/match"
)

// CorpusReader returns every stored lost and found record.
type CorpusReader interface {
	ListAll(ctx context.Context) ([]item.Record, error)
}

// Scorer scores a query against a set of candidate records. The returned
// scores may be in any order and may omit candidates.
type Scorer interface {
	Rank(ctx context.Context, query string, candidates []item.Record) ([]dommatch.CandidateScore, error)
}
