package match

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kailas-cloud/lostmatch/internal/domain"
	"github.com/kailas-cloud/lostmatch/internal/domain/item"
	dommatch "github.com/kailas-cloud/lostmatch/internal/domain/match"
	"github.com/kailas-cloud/lostmatch/internal/metrics"
	"github.com/kailas-cloud/lostmatch/internal/transport/hashvec"
	"github.com/kailas-cloud/lostmatch/internal/usecase/scorer/cosine"
	"github.com/kailas-cloud/lostmatch/internal/usecase/scorer/judgment"
)

func TestMain(m *testing.M) {
	metrics.RegisterMatchMetrics()
	goleak.VerifyTestMain(m)
}

// --- Fakes ---

type fakeCorpus struct {
	records []item.Record
	err     error
	calls   atomic.Int32
}

func (f *fakeCorpus) ListAll(_ context.Context) ([]item.Record, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return slices.Clone(f.records), nil
}

// fakeScorer scores every candidate by a fixed table keyed on item key.
type fakeScorer struct {
	scores map[item.Key]float64
	extra  []dommatch.CandidateScore
	err    error
	block  bool
	calls  atomic.Int32
}

func (f *fakeScorer) Rank(ctx context.Context, _ string, candidates []item.Record) ([]dommatch.CandidateScore, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", domain.ErrScorerUnavailable, ctx.Err())
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]dommatch.CandidateScore, 0, len(candidates)+len(f.extra))
	for _, r := range candidates {
		out = append(out, dommatch.NewCandidateScore(r, f.scores[r.Key()]))
	}
	return append(out, f.extra...), nil
}

type blockingCompleter struct{}

func (blockingCompleter) Complete(ctx context.Context, _ string, _ float64) (domain.Completion, error) {
	<-ctx.Done()
	return domain.Completion{}, fmt.Errorf("request: %w", ctx.Err())
}

type textCompleter struct{ text string }

func (c textCompleter) Complete(context.Context, string, float64) (domain.Completion, error) {
	return domain.Completion{Text: c.text}, nil
}

func intp(v int) *int { return &v }

func defaultConfig() Config {
	return Config{Strategy: dommatch.Embedding, DefaultK: 5, MaxK: 50}
}

func sampleCorpus(n int) []item.Record {
	out := make([]item.Record, 0, n)
	for i := range n {
		kind := item.Lost
		if i%2 == 1 {
			kind = item.Found
		}
		out = append(out, item.Record{ID: int64(i/2 + 1), Kind: kind, Name: fmt.Sprintf("item %d", i)})
	}
	return out
}

func tableFor(records []item.Record) map[item.Key]float64 {
	scores := make(map[item.Key]float64, len(records))
	for i, r := range records {
		scores[r.Key()] = float64(i%4) / 4
	}
	return scores
}

// --- Validation ---

func TestMatch_RejectsInvalidK(t *testing.T) {
	corpus := &fakeCorpus{records: sampleCorpus(3)}
	scorer := &fakeScorer{}
	svc := New(corpus, scorer, defaultConfig(), nil)

	for _, k := range []int{-1, 51} {
		_, err := svc.Match(context.Background(), "wallet", intp(k))
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "k=%d", k)
	}
	assert.Zero(t, corpus.calls.Load())
	assert.Zero(t, scorer.calls.Load())
}

func TestMatch_BlankQueryMakesNoCalls(t *testing.T) {
	corpus := &fakeCorpus{records: sampleCorpus(3)}
	scorer := &fakeScorer{}
	svc := New(corpus, scorer, defaultConfig(), nil)

	for _, q := range []string{"", "   ", "\n\t "} {
		res, err := svc.Match(context.Background(), q, nil)
		require.NoError(t, err)
		assert.Empty(t, res.Items)
		assert.Equal(t, dommatch.StatusOK, res.Status)
	}
	assert.Zero(t, corpus.calls.Load())
	assert.Zero(t, scorer.calls.Load())
}

func TestMatch_EmptyCorpus(t *testing.T) {
	scorer := &fakeScorer{}
	svc := New(&fakeCorpus{}, scorer, defaultConfig(), nil)

	res, err := svc.Match(context.Background(), "black wallet", intp(5))
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.NotNil(t, res.Items)
	assert.Equal(t, dommatch.StatusOK, res.Status)
	assert.Zero(t, scorer.calls.Load())
}

// --- Ranking ---

func TestMatch_LengthLaw(t *testing.T) {
	for _, n := range []int{1, 3, 7, 12} {
		records := sampleCorpus(n)
		svc := New(&fakeCorpus{records: records}, &fakeScorer{scores: tableFor(records)}, defaultConfig(), nil)
		for _, k := range []int{0, 1, 5, 10, 50} {
			res, err := svc.Match(context.Background(), "item", intp(k))
			require.NoError(t, err)
			assert.Len(t, res.Items, min(k, n), "n=%d k=%d", n, k)
		}
	}
}

func TestMatch_DefaultK(t *testing.T) {
	records := sampleCorpus(9)
	cfg := defaultConfig()
	cfg.DefaultK = 3
	svc := New(&fakeCorpus{records: records}, &fakeScorer{scores: tableFor(records)}, cfg, nil)

	res, err := svc.Match(context.Background(), "item", nil)
	require.NoError(t, err)
	assert.Len(t, res.Items, 3)
	assert.Equal(t, 3, svc.DefaultK())
}

func TestMatch_OrderIndependentOfCorpusOrder(t *testing.T) {
	records := sampleCorpus(10)
	scores := tableFor(records)
	want, err := New(&fakeCorpus{records: records}, &fakeScorer{scores: scores}, defaultConfig(), nil).
		Match(context.Background(), "item", intp(10))
	require.NoError(t, err)

	for seed := range uint64(5) {
		shuffled := slices.Clone(records)
		r := rand.New(rand.NewPCG(seed, seed+1))
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := New(&fakeCorpus{records: shuffled}, &fakeScorer{scores: scores}, defaultConfig(), nil).
			Match(context.Background(), "item", intp(10))
		require.NoError(t, err)
		assert.Equal(t, want.Items, got.Items)
	}
}

func TestMatch_DropsPhantomScores(t *testing.T) {
	records := sampleCorpus(2)
	scorer := &fakeScorer{
		scores: tableFor(records),
		extra: []dommatch.CandidateScore{
			{ItemID: 99, Kind: item.Lost, Name: "ghost", Score: 1},
			{ItemID: 1, Kind: item.Lost, Name: "renamed", Score: 0.9},
		},
	}
	svc := New(&fakeCorpus{records: records}, scorer, defaultConfig(), nil)

	res, err := svc.Match(context.Background(), "item", intp(5))
	require.NoError(t, err)
	for _, cs := range res.Items {
		assert.NotEqual(t, int64(99), cs.ItemID)
		if cs.Kind == item.Lost && cs.ItemID == 1 {
			assert.Equal(t, "item 0", cs.Name)
		}
	}
}

func TestMatch_SkipsInvalidAndDuplicateRecords(t *testing.T) {
	records := []item.Record{
		{ID: 1, Kind: item.Lost, Name: "wallet"},
		{ID: 1, Kind: item.Lost, Name: "wallet again"},
		{ID: 2, Kind: "stolen", Name: "bike"},
		{ID: 3, Kind: item.Found, Name: ""},
	}
	svc := New(&fakeCorpus{records: records}, &fakeScorer{}, defaultConfig(), nil)

	res, err := svc.Match(context.Background(), "wallet", intp(5))
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "wallet", res.Items[0].Name)
}

// --- Degraded mode ---

func TestMatch_StoreFailureIsDegraded(t *testing.T) {
	scorer := &fakeScorer{}
	svc := New(&fakeCorpus{err: errors.New("connection reset")}, scorer, defaultConfig(), nil)

	res, err := svc.Match(context.Background(), "wallet", nil)
	require.NoError(t, err)
	assert.True(t, res.Degraded())
	assert.Empty(t, res.Items)
	assert.Zero(t, scorer.calls.Load())
}

func TestMatch_ScorerUnavailableIsDegraded(t *testing.T) {
	scorer := &fakeScorer{err: fmt.Errorf("embed: %w", domain.ErrScorerUnavailable)}
	svc := New(&fakeCorpus{records: sampleCorpus(3)}, scorer, defaultConfig(), nil)

	res, err := svc.Match(context.Background(), "wallet", nil)
	require.NoError(t, err)
	assert.Equal(t, dommatch.StatusDegraded, res.Status)
	assert.Empty(t, res.Items)
}

func TestMatch_MalformedJudgmentIsEmptyOK(t *testing.T) {
	scorer := &fakeScorer{err: fmt.Errorf("parse: %w", domain.ErrMalformedJudgment)}
	cfg := defaultConfig()
	cfg.Strategy = dommatch.LLM
	svc := New(&fakeCorpus{records: sampleCorpus(3)}, scorer, cfg, nil)

	res, err := svc.Match(context.Background(), "wallet", nil)
	require.NoError(t, err)
	assert.Equal(t, dommatch.StatusOK, res.Status)
	assert.Empty(t, res.Items)
}

func TestMatch_EmbeddingTimeoutIsDegraded(t *testing.T) {
	cfg := defaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	svc := New(&fakeCorpus{records: sampleCorpus(2)}, &fakeScorer{block: true}, cfg, nil)

	res, err := svc.Match(context.Background(), "wallet", nil)
	require.NoError(t, err)
	assert.True(t, res.Degraded())
}

func TestMatch_LLMTimeoutIsEmptyOK(t *testing.T) {
	cfg := defaultConfig()
	cfg.Strategy = dommatch.LLM
	cfg.Timeout = 20 * time.Millisecond
	svc := New(&fakeCorpus{records: sampleCorpus(2)}, judgment.New(blockingCompleter{}, 0, nil), cfg, nil)

	res, err := svc.Match(context.Background(), "wallet", nil)
	require.NoError(t, err)
	assert.Equal(t, dommatch.StatusOK, res.Status)
	assert.Empty(t, res.Items)
}

// --- End to end with real scorers ---

func blackWalletCorpus() []item.Record {
	return []item.Record{
		{ID: 1, Kind: item.Lost, Name: "black wallet", Place: "library"},
		{ID: 2, Kind: item.Found, Name: "black wallet", Place: "library"},
	}
}

func TestMatch_BlackWalletWithEmbeddings(t *testing.T) {
	enc := hashvec.New(hashvec.DefaultDimensions)
	svc := New(&fakeCorpus{records: blackWalletCorpus()}, cosine.New(enc, enc, nil), defaultConfig(), nil)

	res, err := svc.Match(context.Background(), "black wallet left in library", intp(1))
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, int64(1), res.Items[0].ItemID)
	assert.Equal(t, item.Lost, res.Items[0].Kind)
	assert.Greater(t, res.Items[0].Score, 0.5)
}

func TestMatch_AdversarialJudgmentStaysInRange(t *testing.T) {
	cfg := defaultConfig()
	cfg.Strategy = dommatch.LLM
	completer := textCompleter{text: "```json\n" + `[
		{"type":"found","id":2,"name":"black wallet","score":1e9},
		{"type":"lost","id":1,"name":"black wallet","score":-5},
		{"type":"lost","id":3,"name":"gold ring","score":0.99}
	]` + "\n```"}
	svc := New(&fakeCorpus{records: blackWalletCorpus()}, judgment.New(completer, 0, nil), cfg, nil)

	res, err := svc.Match(context.Background(), "black wallet", intp(5))
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, item.Key{Kind: item.Found, ID: 2}, res.Items[0].Key())
	assert.Equal(t, 1.0, res.Items[0].Score)
	assert.Equal(t, 0.0, res.Items[1].Score)
}

func TestMatch_ConcurrentQueries(t *testing.T) {
	enc := hashvec.New(hashvec.DefaultDimensions)
	svc := New(&fakeCorpus{records: blackWalletCorpus()}, cosine.New(enc, enc, nil), defaultConfig(), nil)

	var wg sync.WaitGroup
	results := make([]dommatch.Result, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Match(context.Background(), "black wallet", intp(2))
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	for _, res := range results[1:] {
		assert.Equal(t, results[0], res)
	}
}
