package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/lostmatch/internal/config"
	"github.com/kailas-cloud/lostmatch/internal/db"
	badgerdb "github.com/kailas-cloud/lostmatch/internal/db/badger"
	dbValkey "github.com/kailas-cloud/lostmatch/internal/db/valkey"
	"github.com/kailas-cloud/lostmatch/internal/domain"
	"github.com/kailas-cloud/lostmatch/internal/domain/item"
	dommatch "github.com/kailas-cloud/lostmatch/internal/domain/match"
	"github.com/kailas-cloud/lostmatch/internal/metrics"
	"github.com/kailas-cloud/lostmatch/internal/repository/embcache"
	itemrepo "github.com/kailas-cloud/lostmatch/internal/repository/item"
	"github.com/kailas-cloud/lostmatch/internal/transport/hashvec"
	"github.com/kailas-cloud/lostmatch/internal/transport/langchain"
	openaiTransport "github.com/kailas-cloud/lostmatch/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/lostmatch/internal/usecase/embedding"
	generationuc "github.com/kailas-cloud/lostmatch/internal/usecase/generation"
	healthuc "github.com/kailas-cloud/lostmatch/internal/usecase/health"
	matchuc "github.com/kailas-cloud/lostmatch/internal/usecase/match"
	"github.com/kailas-cloud/lostmatch/internal/usecase/scorer/cosine"
	"github.com/kailas-cloud/lostmatch/internal/usecase/scorer/judgment"
)

// itemStore is what the commands need from the configured item repository.
type itemStore interface {
	ListAll(ctx context.Context) ([]item.Record, error)
	PutMany(ctx context.Context, recs []item.Record) error
}

// runtime holds the assembled object graph. Close releases it in reverse order.
type runtime struct {
	items   itemStore
	match   *matchuc.Service
	health  *healthuc.Service
	closers []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// storeHandles are the pieces of the storage layer other components depend on.
type storeHandles struct {
	items  itemStore
	pinger healthuc.DBPinger
	kv     db.KVStore // nil unless the driver is valkey or redis
}

// buildRuntime is the composition root.
func buildRuntime(ctx context.Context, cfg config.Config, logger *zap.Logger) (rt *runtime, err error) {
	rt = &runtime{}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterGenerationMetrics()
	metrics.RegisterMatchMetrics()

	st, err := buildStore(ctx, cfg.Store, logger, rt)
	if err != nil {
		return nil, err
	}
	rt.items = st.items

	var (
		scorer    matchuc.Scorer
		embHealth healthuc.ProviderChecker
		genHealth healthuc.ProviderChecker
		strategy  = dommatch.Strategy(cfg.Match.Strategy)
	)
	switch strategy {
	case dommatch.Embedding:
		queryEmb, docEmb, err := buildEmbedders(cfg.Embedding, st.kv, logger, rt)
		if err != nil {
			return nil, err
		}
		scorer = cosine.New(queryEmb, docEmb, logger)
		embHealth = embeddingHealthChecker{docEmb}
		logger.Info("Embedding scorer ready",
			zap.String("provider", cfg.Embedding.Provider),
			zap.String("model", cfg.Embedding.Model),
			zap.Bool("cache", st.kv != nil && cfg.Embedding.Cache.Enabled),
		)
	case dommatch.LLM:
		gen, err := buildCompleter(cfg.Generation, logger)
		if err != nil {
			return nil, err
		}
		scorer = judgment.New(gen, cfg.Generation.Temperature, logger)
		genHealth = gen
		logger.Info("Judgment scorer ready",
			zap.String("driver", cfg.Generation.Driver),
			zap.String("model", cfg.Generation.Model),
		)
	default:
		return nil, fmt.Errorf("unknown match strategy %q", cfg.Match.Strategy)
	}

	defaultK := dommatch.DefaultK
	if cfg.Match.DefaultK != nil {
		defaultK = *cfg.Match.DefaultK
	}
	rt.match = matchuc.New(st.items, scorer, matchuc.Config{
		Strategy: strategy,
		DefaultK: defaultK,
		MaxK:     cfg.Match.MaxK,
		Timeout:  cfg.Match.Timeout(),
	}, logger)
	rt.health = healthuc.New(st.pinger, embHealth, genHealth)
	return rt, nil
}

func buildStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger, rt *runtime) (storeHandles, error) {
	switch cfg.Driver {
	case config.DriverValkey, config.DriverRedis:
		s, err := dbValkey.NewStore(dbValkey.Config{Addrs: cfg.Addrs, Password: cfg.Password})
		if err != nil {
			return storeHandles{}, fmt.Errorf("create %s store: %w", cfg.Driver, err)
		}
		rt.closers = append(rt.closers, s.Close)
		if err := s.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
			return storeHandles{}, fmt.Errorf("%s not ready: %w", cfg.Driver, err)
		}
		logger.Info("Connected to database", zap.String("driver", cfg.Driver), zap.Strings("addrs", cfg.Addrs))
		return storeHandles{items: itemrepo.New(s, logger), pinger: s, kv: s}, nil
	case config.DriverBadger:
		s, err := badgerdb.Open(badgerdb.Config{Path: cfg.Path, InMemory: cfg.InMemory}, logger)
		if err != nil {
			return storeHandles{}, fmt.Errorf("open badger store: %w", err)
		}
		rt.closers = append(rt.closers, func() {
			if err := s.Close(); err != nil {
				logger.Warn("Failed to close badger store", zap.Error(err))
			}
		})
		logger.Info("Opened database", zap.String("driver", cfg.Driver), zap.String("path", cfg.Path))
		return storeHandles{items: itemrepo.NewBadger(s, logger), pinger: s}, nil
	case config.DriverMemory:
		return storeHandles{items: itemrepo.NewMemory()}, nil
	default:
		return storeHandles{}, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// buildEmbedders returns the query and document chains. Both call the same
// backend, so they share one limiter.
func buildEmbedders(
	cfg config.EmbeddingConfig, kv db.KVStore, logger *zap.Logger, rt *runtime,
) (query, doc domain.Embedder, err error) {
	limiter := embeddinguc.NewLimiter(cfg.RPS, cfg.Burst)
	query, err = buildEmbedder(cfg, cfg.QueryInstruction, limiter, kv, logger, rt)
	if err != nil {
		return nil, nil, err
	}
	doc, err = buildEmbedder(cfg, cfg.DocumentInstruction, limiter, kv, logger, rt)
	if err != nil {
		return nil, nil, err
	}
	return query, doc, nil
}

// buildEmbedder assembles the decorator chain:
// base -> Instrumented -> Pooled (optional) -> Cached (optional) -> Instruction.
func buildEmbedder(
	cfg config.EmbeddingConfig,
	instruction string,
	limiter *rate.Limiter,
	kv db.KVStore,
	logger *zap.Logger,
	rt *runtime,
) (domain.Embedder, error) {
	var (
		base  domain.Embedder
		model = cfg.Model
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		base = openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Provider:   cfg.Provider,
			Logger:     logger,
		})
	case config.ProviderHashing:
		enc := hashvec.New(cfg.Dimensions)
		base = enc
		model = fmt.Sprintf("hashvec-%d", enc.Dimensions())
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	embedder := domain.Embedder(embeddinguc.NewInstrumentedEmbedder(base, cfg.Provider, model, limiter, logger))

	// Pooled sits outside the limiter so every single-text call it fans out waits its turn.
	if cfg.DisableBatch {
		pooled, err := embeddinguc.NewPooledEmbedder(embedder, cfg.PoolSize)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pooled.Release)
		embedder = pooled
	}

	if kv != nil && cfg.Cache.Enabled {
		embedder = embcache.New(embedder, kv, embcache.Config{
			Namespace: fmt.Sprintf("%s:%s:%d", cfg.Provider, model, cfg.Dimensions),
			TTL:       cfg.Cache.TTL(),
		}, metrics.EmbeddingCacheTotal, logger)
	}

	// Instruction prefix is outermost so the cache key includes it.
	if instruction != "" {
		embedder = domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder, nil
}

// completer is a generation backend that can also be probed by /health.
type completer interface {
	domain.Completer
	healthuc.ProviderChecker
}

func buildCompleter(cfg config.GenerationConfig, logger *zap.Logger) (completer, error) {
	var base domain.Completer
	switch cfg.Driver {
	case config.GenerationOpenAI:
		base = openaiTransport.NewCompleter(&openaiTransport.CompleterConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			SystemPrompt: judgment.DefaultSystemPrompt,
			MaxTokens:    cfg.MaxTokens,
			Logger:       logger,
		})
	case config.GenerationLangchain:
		lc, err := langchain.NewCompleter(&langchain.Config{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			SystemPrompt: judgment.DefaultSystemPrompt,
			MaxTokens:    cfg.MaxTokens,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		base = lc
	default:
		return nil, fmt.Errorf("unknown generation driver %q", cfg.Driver)
	}
	return generationuc.NewInstrumentedCompleter(
		base, cfg.Driver, cfg.Model, embeddinguc.NewLimiter(cfg.RPS, cfg.Burst), logger,
	), nil
}

// embeddingHealthChecker probes the embedder when it supports health checks.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func (h embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}
