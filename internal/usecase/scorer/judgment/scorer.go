// Package judgment scores candidates by asking a generative model for a JSON verdict.
package judgment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lostmatch/internal/domain"
	"github.com/kailas-cloud/lostmatch/internal/domain/item"
	"github.com/kailas-cloud/lostmatch/internal/domain/match"
	"github.com/kailas-cloud/lostmatch/internal/metrics"
)

// Scorer sends the whole candidate set in one prompt and maps the verdict back onto it.
type Scorer struct {
	completer   domain.Completer
	temperature float64
	logger      *zap.Logger
}

// New creates a judgment scorer.
func New(completer domain.Completer, temperature float64, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{completer: completer, temperature: temperature, logger: logger}
}

// Rank returns scores for the candidates the model named. Entries naming no
// candidate are dropped one by one.
//
// Errors: domain.ErrMalformedJudgment for unparseable output or an expired
// deadline, domain.ErrScorerUnavailable for any other backend failure.
func (s *Scorer) Rank(ctx context.Context, query string, candidates []item.Record) ([]match.CandidateScore, error) {
	if len(candidates) == 0 {
		return []match.CandidateScore{}, nil
	}

	out, err := s.completer.Complete(ctx, BuildPrompt(query, candidates), s.temperature)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("judgment timed out: %w: %w", domain.ErrMalformedJudgment, err)
		}
		return nil, fmt.Errorf("judgment request: %w: %w", domain.ErrScorerUnavailable, err)
	}

	entries, err := Parse(out.Text)
	if err != nil {
		metrics.JudgmentEntriesDropped.WithLabelValues("malformed").Inc()
		return nil, err
	}

	return s.resolve(entries, candidates), nil
}

func (s *Scorer) resolve(entries []Entry, candidates []item.Record) []match.CandidateScore {
	idx := newCandidateIndex(candidates)
	best := make(map[item.Key]match.CandidateScore, len(entries))
	order := make([]item.Key, 0, len(entries))

	for _, e := range entries {
		r, err := idx.lookup(e)
		if err != nil {
			metrics.JudgmentEntriesDropped.WithLabelValues("unknown_candidate").Inc()
			s.logger.Debug("Dropping judgment entry",
				zap.String("type", string(e.Kind)),
				zap.String("name", e.Name),
				zap.Error(err),
			)
			continue
		}
		cs := match.NewCandidateScore(r, e.Score)
		prev, seen := best[cs.Key()]
		if !seen {
			order = append(order, cs.Key())
		}
		if !seen || cs.Score > prev.Score {
			best[cs.Key()] = cs
		}
	}

	scores := make([]match.CandidateScore, 0, len(order))
	for _, k := range order {
		scores = append(scores, best[k])
	}
	return scores
}

type nameKey struct {
	kind item.Kind
	name string
}

type candidateIndex struct {
	byKey  map[item.Key]item.Record
	byName map[nameKey]item.Record
}

func newCandidateIndex(candidates []item.Record) candidateIndex {
	idx := candidateIndex{
		byKey:  make(map[item.Key]item.Record, len(candidates)),
		byName: make(map[nameKey]item.Record, len(candidates)),
	}
	for _, r := range candidates {
		idx.byKey[r.Key()] = r
		nk := nameKey{kind: r.Kind, name: foldName(r.Name)}
		if prev, ok := idx.byName[nk]; !ok || r.ID < prev.ID {
			idx.byName[nk] = r
		}
	}
	return idx
}

// lookup trusts an id only when kind and name agree with the record it points at.
func (c candidateIndex) lookup(e Entry) (item.Record, error) {
	name := foldName(e.Name)
	if e.ID != nil {
		if r, ok := c.byKey[item.Key{Kind: e.Kind, ID: *e.ID}]; ok && foldName(r.Name) == name {
			return r, nil
		}
	}
	if r, ok := c.byName[nameKey{kind: e.Kind, name: name}]; ok {
		return r, nil
	}
	return item.Record{}, domain.ErrUnknownCandidate
}

func foldName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
