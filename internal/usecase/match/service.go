package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lostmatch/internal/domain"
	"github.com/kailas-cloud/lostmatch/internal/domain/item"
	dommatch "github.com/kailas-cloud/lostmatch/internal/domain/match"
	"github.com/kailas-cloud/lostmatch/internal/domain/normalize"
	"github.com/kailas-cloud/lostmatch/internal/logger"
	"github.com/kailas-cloud/lostmatch/internal/metrics"
)

// Config controls result size and backend time limits.
type Config struct {
	Strategy dommatch.Strategy
	DefaultK int
	MaxK     int
	// Timeout bounds the scoring stage. Zero means no extra bound.
	Timeout time.Duration
}

type state string

const (
	stateValidating state = "validating"
	stateScoring    state = "scoring"
	stateRanking    state = "ranking"
	stateDone       state = "done"
	stateRejected   state = "rejected"
	stateDegraded   state = "degraded"
)

// Service answers match queries against a fresh corpus snapshot each time.
// It holds no per-query state and is safe for concurrent use.
type Service struct {
	corpus CorpusReader
	scorer Scorer
	cfg    Config
	logger *zap.Logger
}

// New creates a match service.
func New(corpus CorpusReader, scorer Scorer, cfg Config, logger *zap.Logger) *Service {
	if cfg.DefaultK < 0 {
		cfg.DefaultK = dommatch.DefaultK
	}
	if cfg.MaxK < cfg.DefaultK {
		cfg.MaxK = cfg.DefaultK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{corpus: corpus, scorer: scorer, cfg: cfg, logger: logger}
}

// Strategy returns the configured scoring strategy.
func (s *Service) Strategy() dommatch.Strategy { return s.cfg.Strategy }

// DefaultK returns the result size used when the caller passes nil k.
func (s *Service) DefaultK() int { return s.cfg.DefaultK }

// Match ranks the stored items against query and returns at most k of them.
// A nil k selects the configured default.
//
// Only domain.ErrInvalidInput is returned as an error. Backend failures
// produce an empty result with StatusDegraded.
func (s *Service) Match(ctx context.Context, query string, k *int) (dommatch.Result, error) {
	start := time.Now()
	log := s.log(ctx)

	res, st, err := s.run(ctx, log, query, k)

	strategy := string(s.cfg.Strategy)
	metrics.MatchQueriesTotal.WithLabelValues(strategy, string(st)).Inc()
	metrics.MatchDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())

	if err != nil {
		return dommatch.Result{}, err
	}
	log.Debug("Match finished",
		zap.String("state", string(st)),
		zap.Int("returned", len(res.Items)),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (s *Service) run(
	ctx context.Context, log *zap.Logger, query string, k *int,
) (dommatch.Result, state, error) {
	// Validating
	limit := s.cfg.DefaultK
	if k != nil {
		limit = *k
	}
	if limit < 0 || limit > s.cfg.MaxK {
		return dommatch.Result{}, stateRejected,
			fmt.Errorf("%w: k must be between 0 and %d, got %d", domain.ErrInvalidInput, s.cfg.MaxK, limit)
	}

	q := normalize.Query(query)
	if q == "" || limit == 0 {
		return dommatch.Empty(dommatch.StatusOK), stateDone, nil
	}

	records, err := s.corpus.ListAll(ctx)
	if err != nil {
		log.Warn("Item store unavailable, returning degraded result", zap.Error(err))
		return dommatch.Empty(dommatch.StatusDegraded), stateDegraded, nil
	}
	candidates := validRecords(log, records)
	if len(candidates) == 0 {
		return dommatch.Empty(dommatch.StatusOK), stateDone, nil
	}

	// Scoring
	metrics.MatchCandidates.WithLabelValues(string(s.cfg.Strategy)).Observe(float64(len(candidates)))
	scoreCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		scoreCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	scores, err := s.scorer.Rank(scoreCtx, q, candidates)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrMalformedJudgment):
		log.Warn("Discarding malformed judgment", zap.Error(err))
		return dommatch.Empty(dommatch.StatusOK), stateDone, nil
	default:
		log.Warn("Scorer unavailable, returning degraded result",
			zap.String("state", string(stateScoring)),
			zap.Error(err),
		)
		return dommatch.Empty(dommatch.StatusDegraded), stateDegraded, nil
	}

	// Ranking
	return dommatch.Result{
		Items:  dommatch.Rank(knownScores(log, scores, candidates), limit),
		Status: dommatch.StatusOK,
	}, stateDone, nil
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	return logger.FromContextOr(ctx, s.logger).With(zap.String("strategy", string(s.cfg.Strategy)))
}

// validRecords skips records the store should never have accepted.
func validRecords(log *zap.Logger, records []item.Record) []item.Record {
	out := make([]item.Record, 0, len(records))
	seen := make(map[item.Key]struct{}, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			log.Warn("Skipping invalid item record", zap.Int64("id", r.ID), zap.Error(err))
			continue
		}
		if _, dup := seen[r.Key()]; dup {
			log.Warn("Skipping duplicate item record", zap.String("key", r.Key().String()))
			continue
		}
		seen[r.Key()] = struct{}{}
		out = append(out, r)
	}
	return out
}

// knownScores keeps only scores that reference a record in this snapshot,
// one per item with the highest score winning.
func knownScores(log *zap.Logger, scores []dommatch.CandidateScore, candidates []item.Record) []dommatch.CandidateScore {
	byKey := make(map[item.Key]item.Record, len(candidates))
	for _, r := range candidates {
		byKey[r.Key()] = r
	}
	pos := make(map[item.Key]int, len(scores))
	out := make([]dommatch.CandidateScore, 0, len(scores))
	for _, sc := range scores {
		r, ok := byKey[sc.Key()]
		if !ok {
			log.Debug("Dropping score for unknown item", zap.String("key", sc.Key().String()))
			continue
		}
		cs := dommatch.NewCandidateScore(r, sc.Score)
		if i, seen := pos[cs.Key()]; seen {
			if cs.Score > out[i].Score {
				out[i] = cs
			}
			continue
		}
		pos[cs.Key()] = len(out)
		out = append(out, cs)
	}
	return out
}
